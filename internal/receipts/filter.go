package receipts

import "github.com/promotoria/comisiones/internal/cutoff"

// FilterResult is the subset of receipts that fall inside one corte.
type FilterResult struct {
	Receipts []Receipt
	// Dropped counts receipts excluded because their movement date was unparseable.
	Dropped int
}

// FilterByPeriod keeps the receipts whose movement date lies in the corte's
// year, month and day range. Input order is preserved.
func FilterByPeriod(rs []Receipt, period cutoff.Period) FilterResult {
	out := FilterResult{Receipts: make([]Receipt, 0, len(rs))}
	for _, r := range rs {
		if !r.HasMovementDate() {
			out.Dropped++
			continue
		}
		if period.Contains(r.MovementDate) {
			out.Receipts = append(out.Receipts, r)
		}
	}
	return out
}

// GroupByAgent buckets receipts by the resolved owning agent key.
func GroupByAgent(rs []Receipt) map[int][]Receipt {
	out := make(map[int][]Receipt)
	for _, r := range rs {
		out[r.AgentKey] = append(out[r.AgentKey], r)
	}
	return out
}
