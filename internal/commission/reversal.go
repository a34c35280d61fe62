package commission

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/promotoria/comisiones/internal/receipts"
)

// Entry is one receipt's commission inside a reversal resolution.
type Entry struct {
	Receipt receipts.Receipt    `json:"receipt"`
	Amount  decimal.NullDecimal `json:"amount"`
}

// Resolution is the effective commission of a sequence after cancellations.
type Resolution struct {
	Total    decimal.Decimal `json:"total"`
	Included []Entry         `json:"included"`
	Excluded []Entry         `json:"excluded"`
}

// Resolve applies the cancellation rule to one owner's entries within a
// period: a positive commission is left out of the total when any later entry
// carries a negative commission. Entries are ordered by movement date first;
// ties keep input order. Null commissions take no part.
//
// TODO: confirm with product whether a negative should only cancel its
// matching positive rather than every earlier one.
func Resolve(entries []Entry) Resolution {
	ordered := append([]Entry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Receipt.MovementDate.Before(ordered[j].Receipt.MovementDate)
	})

	cancelled := make([]bool, len(ordered))
	negativeLater := false
	for i := len(ordered) - 1; i >= 0; i-- {
		amt := ordered[i].Amount
		if !amt.Valid {
			continue
		}
		if amt.Decimal.IsPositive() && negativeLater {
			cancelled[i] = true
		}
		if amt.Decimal.IsNegative() {
			negativeLater = true
		}
	}

	res := Resolution{Total: decimal.Zero}
	for i, e := range ordered {
		if !e.Amount.Valid {
			continue
		}
		if cancelled[i] {
			res.Excluded = append(res.Excluded, e)
			continue
		}
		res.Included = append(res.Included, e)
		res.Total = res.Total.Add(e.Amount.Decimal)
	}
	return res
}

// AgentEntries pairs receipts with their stored agent commission.
func AgentEntries(rs []receipts.Receipt) []Entry {
	out := make([]Entry, len(rs))
	for i, r := range rs {
		out[i] = Entry{Receipt: r, Amount: r.AgentCommissionAmount}
	}
	return out
}

// SupervisorEntries pairs receipts with their stored supervisor commission.
func SupervisorEntries(rs []receipts.Receipt) []Entry {
	out := make([]Entry, len(rs))
	for i, r := range rs {
		out[i] = Entry{Receipt: r, Amount: r.SupervisorCommissionAmount}
	}
	return out
}
