// Package balances carries unpaid commission debt across cortes.
package balances

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/promotoria/comisiones/internal/cutoff"
)

// ErrDuplicateBalance indicates a balance already exists for the agent and
// effective date. Reconciliation treats it as already done.
var ErrDuplicateBalance = errors.New("balances: balance already recorded")

// PendingBalance is a carried-forward amount effective from a corte start.
// A zero amount marks a debt that was cleared.
type PendingBalance struct {
	ID            int64           `json:"id,omitempty"`
	AgentID       int64           `json:"agent_id"`
	AgentKey      int             `json:"agent_key,omitempty"`
	EffectiveDate time.Time       `json:"effective_date"`
	Amount        decimal.Decimal `json:"amount"`
	Observations  string          `json:"observations,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
}

// Action is what reconciliation must do for one account.
type Action string

const (
	ActionSkip   Action = "skip"
	ActionCreate Action = "create"
)

// Decision is the pure outcome of combining a prior balance with a period total.
type Decision struct {
	Action  Action          `json:"action"`
	Net     decimal.Decimal `json:"net"`
	Amount  decimal.Decimal `json:"amount"`
	Cleared bool            `json:"cleared"`
}

// Decide applies the carry-forward rule: a negative net is carried as debt, a
// previous debt now covered is closed with an explicit zero, and anything else
// leaves no record. Positive amounts are never carried.
func Decide(prior, periodTotal decimal.Decimal) Decision {
	net := prior.Add(periodTotal)
	switch {
	case net.IsNegative():
		return Decision{Action: ActionCreate, Net: net, Amount: net.Round(2)}
	case prior.IsNegative():
		return Decision{Action: ActionCreate, Net: net, Amount: decimal.Zero, Cleared: true}
	default:
		return Decision{Action: ActionSkip, Net: net, Amount: decimal.Zero}
	}
}

// Outcome records what happened to one account during a run.
type Outcome string

const (
	OutcomeCarried         Outcome = "carried"
	OutcomeCleared         Outcome = "cleared"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
	OutcomeFailed          Outcome = "failed"
)

// AgentResult is one account's line in a reconciliation report.
type AgentResult struct {
	AgentKey    int             `json:"agent_key"`
	AgentID     int64           `json:"agent_id,omitempty"`
	Supervisor  bool            `json:"supervisor"`
	Prior       decimal.Decimal `json:"prior"`
	PeriodTotal decimal.Decimal `json:"period_total"`
	Net         decimal.Decimal `json:"net"`
	Outcome     Outcome         `json:"outcome"`
	Amount      decimal.Decimal `json:"amount"`
	Error       string          `json:"error,omitempty"`
}

// Report summarises a reconciliation run.
type Report struct {
	RunID           string        `json:"run_id"`
	Period          cutoff.Period `json:"period"`
	EffectiveDate   time.Time     `json:"effective_date"`
	DroppedReceipts int           `json:"dropped_receipts"`
	Results         []AgentResult `json:"results"`
	Carried         int           `json:"carried"`
	Cleared         int           `json:"cleared"`
	Skipped         int           `json:"skipped"`
	AlreadyRecorded int           `json:"already_recorded"`
	Failed          int           `json:"failed"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// Written reports how many balances the run persisted.
func (r Report) Written() int {
	return r.Carried + r.Cleared
}

func (r *Report) add(res AgentResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeCarried:
		r.Carried++
	case OutcomeCleared:
		r.Cleared++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeAlreadyRecorded:
		r.AlreadyRecorded++
	case OutcomeFailed:
		r.Failed++
	}
}
