// Package commission computes promoter, agent and supervisor commissions for a
// receipt, applies the reversal rule and aggregates per-period totals.
package commission

import (
	"github.com/shopspring/decimal"

	"github.com/promotoria/comisiones/internal/receipts"
)

// Source names the receipt field a commission base was taken from.
type Source string

const (
	SourceFirstYear        Source = "comision_primer_anio"
	SourceVariableLeveling Source = "nivelacion_variable"
	SourceCombinedAmount   Source = "importe_comble"
)

// Result is one computed commission. Both values are null when the receipt
// earns no commission of that kind.
type Result struct {
	Percentage decimal.NullDecimal `json:"percentage"`
	Amount     decimal.NullDecimal `json:"amount"`
	Source     Source              `json:"source,omitempty"`
}

// Null reports whether no commission applies.
func (r Result) Null() bool {
	return !r.Amount.Valid
}

// BaseAmount selects the amount commissions are computed on. First policy year
// receipts use the first-year commission field when present, level-adjusted
// renewals use the variable leveling field, and everything else uses the
// combined amount.
func BaseAmount(r receipts.Receipt) (decimal.Decimal, Source) {
	if r.VigencyYear <= 1 && r.FirstYearCommission.Valid {
		return r.FirstYearCommission.Decimal, SourceFirstYear
	}
	if r.VariableLeveling.Valid && !r.VariableLeveling.Decimal.IsZero() {
		return r.VariableLeveling.Decimal, SourceVariableLeveling
	}
	return r.CombinedAmount, SourceCombinedAmount
}

// Engine applies a rate table. It holds no mutable state.
type Engine struct {
	rates Rates
}

// NewEngine constructs an Engine over the rate table.
func NewEngine(rates Rates) *Engine {
	return &Engine{rates: rates}
}

// Rates returns the table the engine applies.
func (e *Engine) Rates() Rates {
	return e.rates
}

// Promoter computes the brokerage commission from the percentage stored on the receipt.
func (e *Engine) Promoter(r receipts.Receipt) Result {
	if !r.PromoterCommissionPct.Valid {
		return Result{}
	}
	return apply(r, r.PromoterCommissionPct.Decimal)
}

// Agent computes the selling agent's commission from the tier table.
func (e *Engine) Agent(r receipts.Receipt, agentKey, vigencyYear int) Result {
	if e.rates.AgentExcluded(r.TransactionCode) {
		return Result{}
	}
	pct, ok := e.rates.AgentRate(agentKey, vigencyYear)
	if !ok {
		return Result{}
	}
	return apply(r, pct)
}

// Supervisor computes the commission owed to the agent's supervisor.
func (e *Engine) Supervisor(r receipts.Receipt) Result {
	if e.rates.SupervisorExcluded(r.TransactionCode) {
		return Result{}
	}
	return apply(r, e.rates.Supervisor)
}

// apply multiplies the base by a percentage in points. The amount is kept
// unrounded so its sign always matches the base.
func apply(r receipts.Receipt, pct decimal.Decimal) Result {
	base, source := BaseAmount(r)
	return Result{
		Percentage: decimal.NewNullDecimal(pct),
		Amount:     decimal.NewNullDecimal(base.Mul(pct).Shift(-2)),
		Source:     source,
	}
}
