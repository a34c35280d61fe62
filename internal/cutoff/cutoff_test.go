package cutoff

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ranges(periods []Period) [][2]int {
	out := make([][2]int, len(periods))
	for i, p := range periods {
		out[i] = [2]int{p.StartDay, p.EndDay}
	}
	return out
}

func TestOfMonthFirstDaySaturday(t *testing.T) {
	// June 2024 starts on a Saturday.
	periods, err := OfMonth(2024, time.June)
	require.NoError(t, err)
	require.Equal(t, [][2]int{{1, 4}, {5, 11}, {12, 18}, {19, 25}, {26, 30}}, ranges(periods))

	// March 2025 also starts on a Saturday but has 31 days.
	periods, err = OfMonth(2025, time.March)
	require.NoError(t, err)
	require.Equal(t, [][2]int{{1, 4}, {5, 11}, {12, 18}, {19, 25}, {26, 31}}, ranges(periods))
}

func TestOfMonthFirstDayTuesday(t *testing.T) {
	periods, err := OfMonth(2024, time.October)
	require.NoError(t, err)
	require.Equal(t, [][2]int{{1, 1}, {2, 8}, {9, 15}, {16, 22}, {23, 29}, {30, 31}}, ranges(periods))
}

func TestOfMonthEndsOnTuesdayHasNoFragment(t *testing.T) {
	// December 2024 ends on Tuesday the 31st.
	periods, err := OfMonth(2024, time.December)
	require.NoError(t, err)
	require.Equal(t, [][2]int{{1, 3}, {4, 10}, {11, 17}, {18, 24}, {25, 31}}, ranges(periods))
}

func TestOfMonthFebruary(t *testing.T) {
	periods, err := OfMonth(2022, time.February)
	require.NoError(t, err)
	require.Equal(t, [][2]int{{1, 1}, {2, 8}, {9, 15}, {16, 22}, {23, 28}}, ranges(periods))
}

func TestOfMonthPartitionsEveryMonth(t *testing.T) {
	for year := 2020; year <= 2030; year++ {
		for month := time.January; month <= time.December; month++ {
			periods, err := OfMonth(year, month)
			require.NoError(t, err)
			require.NotEmpty(t, periods)

			next := 1
			for i, p := range periods {
				require.Equal(t, i+1, p.Index)
				require.Equal(t, next, p.StartDay, "%d-%02d gap or overlap at corte %d", year, month, i+1)
				require.GreaterOrEqual(t, p.EndDay, p.StartDay)
				require.LessOrEqual(t, p.Days(), 7)
				if i > 0 && i < len(periods)-1 {
					require.Equal(t, time.Tuesday, p.End().Weekday())
					require.Equal(t, time.Wednesday, p.Start().Weekday())
				}
				next = p.EndDay + 1
			}
			require.Equal(t, DaysIn(year, month)+1, next, "%d-%02d not exhaustive", year, month)
			require.Equal(t, time.Tuesday, periods[0].End().Weekday())
		}
	}
}

func TestOfMonthRejectsInvalidInput(t *testing.T) {
	_, err := OfMonth(2024, 13)
	require.True(t, errors.Is(err, ErrInvalidMonth))
	_, err = OfMonth(0, time.January)
	require.True(t, errors.Is(err, ErrInvalidMonth))
}

func TestNextStart(t *testing.T) {
	p, err := Find(2024, time.June, 2)
	require.NoError(t, err)
	next, err := NextStart(p)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.June, 12, 0, 0, 0, 0, time.UTC), next)

	last, err := Find(2024, time.June, 5)
	require.NoError(t, err)
	next, err = NextStart(last)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), next)

	dec, err := Find(2024, time.December, 5)
	require.NoError(t, err)
	next, err = NextStart(dec)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), next)
}

func TestFindOutOfRange(t *testing.T) {
	_, err := Find(2024, time.June, 6)
	require.ErrorIs(t, err, ErrPeriodNotFound)
	_, err = Find(2024, time.June, 0)
	require.ErrorIs(t, err, ErrPeriodNotFound)
}

func TestContainsAndContaining(t *testing.T) {
	p, err := Containing(time.Date(2024, time.June, 13, 15, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 3, p.Index)
	require.True(t, p.Contains(time.Date(2024, time.June, 18, 23, 0, 0, 0, time.UTC)))
	require.False(t, p.Contains(time.Date(2024, time.July, 13, 0, 0, 0, 0, time.UTC)))
	require.False(t, p.Contains(time.Time{}))
}

func TestLastClosedCrossesMonth(t *testing.T) {
	p, err := LastClosed(time.Date(2024, time.July, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, time.June, p.Month)
	require.Equal(t, 5, p.Index)

	p, err = LastClosed(time.Date(2024, time.June, 12, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "2024-06 #2", p.Label())
}
