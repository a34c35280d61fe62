// Package cutoff derives the accounting periods ("cortes") of a calendar month.
//
// A month is partitioned into Tuesday-ending windows: the first corte runs from
// day 1 to the first Tuesday, each following corte spans Wednesday..Tuesday,
// and whatever is left after the last full week becomes a trailing fragment.
package cutoff

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMonth is returned for a year/month pair that cannot be calendared.
var ErrInvalidMonth = errors.New("cutoff: invalid year/month")

// ErrPeriodNotFound indicates the requested corte index does not exist in the month.
var ErrPeriodNotFound = errors.New("cutoff: period not found")

// Period is one corte: an inclusive range of days inside a single month.
type Period struct {
	Year     int        `json:"year"`
	Month    time.Month `json:"month"`
	Index    int        `json:"index"`
	StartDay int        `json:"start_day"`
	EndDay   int        `json:"end_day"`
}

// Start returns the first day of the corte at midnight UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, p.StartDay, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the corte at midnight UTC.
func (p Period) End() time.Time {
	return time.Date(p.Year, p.Month, p.EndDay, 0, 0, 0, 0, time.UTC)
}

// Days reports how many calendar days the corte covers.
func (p Period) Days() int {
	return p.EndDay - p.StartDay + 1
}

// Contains reports whether t falls on one of the corte's days.
func (p Period) Contains(t time.Time) bool {
	if t.IsZero() || t.Year() != p.Year || t.Month() != p.Month {
		return false
	}
	day := t.Day()
	return day >= p.StartDay && day <= p.EndDay
}

// Label renders a short human identifier, e.g. "2024-06 #2".
func (p Period) Label() string {
	return fmt.Sprintf("%04d-%02d #%d", p.Year, int(p.Month), p.Index)
}

func (p Period) String() string {
	return fmt.Sprintf("%s [%02d-%02d]", p.Label(), p.StartDay, p.EndDay)
}

// OfMonth returns the ordered cortes of the month. The result is never empty
// for a valid month and partitions every day exactly once.
func OfMonth(year int, month time.Month) ([]Period, error) {
	if err := validate(year, month); err != nil {
		return nil, err
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	lastDay := DaysIn(year, month)

	offset := (int(time.Tuesday) - int(first.Weekday()) + 7) % 7
	end := first.AddDate(0, 0, offset)

	periods := []Period{{Year: year, Month: month, Index: 1, StartDay: 1, EndDay: end.Day()}}
	for {
		start := end.AddDate(0, 0, 1)
		next := start.AddDate(0, 0, 6)
		if next.Month() != month {
			break
		}
		periods = append(periods, Period{
			Year:     year,
			Month:    month,
			Index:    len(periods) + 1,
			StartDay: start.Day(),
			EndDay:   next.Day(),
		})
		end = next
	}

	wednesday := end.AddDate(0, 0, 1)
	if wednesday.Month() == month && wednesday.Day() <= lastDay {
		periods = append(periods, Period{
			Year:     year,
			Month:    month,
			Index:    len(periods) + 1,
			StartDay: wednesday.Day(),
			EndDay:   lastDay,
		})
	}
	return periods, nil
}

// Find returns the corte with the given 1-based index.
func Find(year int, month time.Month, index int) (Period, error) {
	periods, err := OfMonth(year, month)
	if err != nil {
		return Period{}, err
	}
	if index < 1 || index > len(periods) {
		return Period{}, fmt.Errorf("%w: %04d-%02d #%d", ErrPeriodNotFound, year, int(month), index)
	}
	return periods[index-1], nil
}

// Containing returns the corte that includes the given date.
func Containing(t time.Time) (Period, error) {
	periods, err := OfMonth(t.Year(), t.Month())
	if err != nil {
		return Period{}, err
	}
	for _, p := range periods {
		if p.Contains(t) {
			return p, nil
		}
	}
	return Period{}, fmt.Errorf("%w: %s", ErrPeriodNotFound, t.Format("2006-01-02"))
}

// NextStart returns the first day of the corte that follows p: the next corte of
// the same month when one exists, otherwise the 1st of the following month.
func NextStart(p Period) (time.Time, error) {
	periods, err := OfMonth(p.Year, p.Month)
	if err != nil {
		return time.Time{}, err
	}
	for _, q := range periods {
		if q.StartDay > p.EndDay {
			return q.Start(), nil
		}
	}
	return time.Date(p.Year, p.Month+1, 1, 0, 0, 0, 0, time.UTC), nil
}

// Previous returns the corte immediately before p, crossing month boundaries.
func Previous(p Period) (Period, error) {
	if p.Index > 1 {
		return Find(p.Year, p.Month, p.Index-1)
	}
	prev := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	periods, err := OfMonth(prev.Year(), prev.Month())
	if err != nil {
		return Period{}, err
	}
	return periods[len(periods)-1], nil
}

// LastClosed returns the most recent corte that ended strictly before now.
func LastClosed(now time.Time) (Period, error) {
	current, err := Containing(now.UTC())
	if err != nil {
		return Period{}, err
	}
	return Previous(current)
}

// DaysIn returns the number of days of the month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func validate(year int, month time.Month) error {
	if year < 1 || month < time.January || month > time.December {
		return fmt.Errorf("%w: %d-%d", ErrInvalidMonth, year, int(month))
	}
	return nil
}
