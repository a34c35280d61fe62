package balances

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promotoria/comisiones/internal/commission"
	"github.com/promotoria/comisiones/internal/cutoff"
	"github.com/promotoria/comisiones/internal/platform/cache"
	"github.com/promotoria/comisiones/internal/receipts"
	"github.com/promotoria/comisiones/internal/refdata"
)

// Store is the balance persistence gate.
type Store interface {
	LatestAsOf(ctx context.Context, agentID int64, asOf time.Time) (PendingBalance, bool, error)
	Exists(ctx context.Context, agentID int64, effectiveDate time.Time) (bool, error)
	Create(ctx context.Context, pb PendingBalance) (PendingBalance, error)
	NegativeAsOf(ctx context.Context, asOf time.Time) ([]int64, error)
	History(ctx context.Context, agentID int64) ([]PendingBalance, error)
}

// ReceiptSource loads the receipts of a calendar month.
type ReceiptSource interface {
	ListByMovementMonth(ctx context.Context, year int, month time.Month) ([]receipts.Receipt, error)
}

// Directory is the reference data the reconciler reads.
type Directory interface {
	commission.Directory
	Agent(key int) (refdata.Agent, error)
	AgentByID(id int64) (refdata.Agent, error)
}

// DecisionRecorder observes per-account outcomes.
type DecisionRecorder interface {
	RecordDecision(outcome string)
}

// Reconciler turns a corte's commission totals into pending balance records.
type Reconciler struct {
	store       Store
	receipts    ReceiptSource
	invalidator cache.Invalidator
	recorder    DecisionRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewReconciler constructs a Reconciler. invalidator may be nil.
func NewReconciler(store Store, source ReceiptSource, invalidator cache.Invalidator, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:       store,
		receipts:    source,
		invalidator: invalidator,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (r *Reconciler) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// WithRecorder attaches a decision recorder.
func (r *Reconciler) WithRecorder(rec DecisionRecorder) {
	r.recorder = rec
}

type member struct {
	agent      refdata.Agent
	supervisor bool
}

// ReconcilePeriod settles every account that had receipts in the corte or
// still carries a debt. Failures are isolated per account and reported; only
// errors that prevent computing the corte at all are returned.
func (r *Reconciler) ReconcilePeriod(ctx context.Context, period cutoff.Period, dir Directory) (Report, error) {
	effective, err := cutoff.NextStart(period)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		RunID:         uuid.NewString(),
		Period:        period,
		EffectiveDate: effective,
		StartedAt:     r.now(),
	}
	logger := r.logger.With(slog.String("run_id", report.RunID), slog.String("corte", period.Label()))

	monthly, err := r.receipts.ListByMovementMonth(ctx, period.Year, period.Month)
	if err != nil {
		return Report{}, fmt.Errorf("balances: load receipts: %w", err)
	}
	filtered := receipts.FilterByPeriod(monthly, period)
	report.DroppedReceipts = filtered.Dropped
	if filtered.Dropped > 0 {
		logger.Warn("receipts without movement date ignored", slog.Int("dropped", filtered.Dropped))
	}
	summary := commission.Summarize(filtered.Receipts, dir)

	debtors, err := r.store.NegativeAsOf(ctx, period.Start())
	if err != nil {
		return Report{}, fmt.Errorf("balances: load debtors: %w", err)
	}

	members, failures := r.population(summary, debtors, dir)
	for _, f := range failures {
		logger.Error("reference data missing", slog.Int("agent_key", f.AgentKey), slog.Int64("agent_id", f.AgentID), slog.String("error", f.Error))
		r.record(f.Outcome)
		report.add(f)
	}

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		total := summary.Agent(m.agent.Key).Amount
		if m.supervisor {
			total = summary.Supervisor(m.agent.Key).Amount
		}
		res := r.settle(ctx, m, total, period, effective)
		r.record(res.Outcome)
		switch res.Outcome {
		case OutcomeFailed:
			logger.Error("balance reconciliation failed", slog.Int("agent_key", res.AgentKey), slog.String("error", res.Error))
		case OutcomeCarried, OutcomeCleared:
			logger.Info("pending balance recorded",
				slog.Int("agent_key", res.AgentKey),
				slog.String("outcome", string(res.Outcome)),
				slog.String("amount", res.Amount.StringFixed(2)),
			)
		}
		report.add(res)
	}

	report.FinishedAt = r.now()
	if report.Written() > 0 && r.invalidator != nil {
		if err := r.invalidator.Bump(ctx); err != nil {
			logger.Warn("cache invalidation failed", slog.Any("error", err))
		}
	}
	logger.Info("reconciliation finished",
		slog.Int("carried", report.Carried),
		slog.Int("cleared", report.Cleared),
		slog.Int("skipped", report.Skipped),
		slog.Int("already_recorded", report.AlreadyRecorded),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// population collects active accounts with activity in the corte plus every
// account still in debt, ordered by key.
func (r *Reconciler) population(summary commission.Summary, debtors []int64, dir Directory) ([]member, []AgentResult) {
	checked := make(map[int]bool)
	added := make(map[int]bool)
	var members []member
	var failures []AgentResult

	add := func(agent refdata.Agent) {
		if added[agent.Key] {
			return
		}
		added[agent.Key] = true
		members = append(members, member{agent: agent, supervisor: agent.IsSupervisor()})
	}
	for _, key := range activeKeys(summary) {
		if checked[key] {
			continue
		}
		checked[key] = true
		agent, err := dir.Agent(key)
		if err != nil {
			failures = append(failures, failure(key, 0, err))
			continue
		}
		if agent.Active() {
			add(agent)
		}
	}
	// Debt is carried regardless of account status.
	for _, id := range debtors {
		agent, err := dir.AgentByID(id)
		if err != nil {
			failures = append(failures, failure(0, id, err))
			continue
		}
		add(agent)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].agent.Key < members[j].agent.Key })
	return members, failures
}

func activeKeys(summary commission.Summary) []int {
	keys := make([]int, 0, len(summary.Agents)+len(summary.Supervisors))
	for _, t := range summary.Agents {
		keys = append(keys, t.Key)
	}
	for _, t := range summary.Supervisors {
		keys = append(keys, t.Key)
	}
	return keys
}

func (r *Reconciler) settle(ctx context.Context, m member, total decimal.Decimal, period cutoff.Period, effective time.Time) AgentResult {
	res := AgentResult{
		AgentKey:    m.agent.Key,
		AgentID:     m.agent.ID,
		Supervisor:  m.supervisor,
		Prior:       decimal.Zero,
		PeriodTotal: total,
	}
	prior, ok, err := r.store.LatestAsOf(ctx, m.agent.ID, period.Start())
	if err != nil {
		return failed(res, err)
	}
	if ok {
		res.Prior = prior.Amount
	}
	decision := Decide(res.Prior, total)
	res.Net = decision.Net
	if decision.Action == ActionSkip {
		res.Outcome = OutcomeSkipped
		return res
	}
	res.Amount = decision.Amount

	exists, err := r.store.Exists(ctx, m.agent.ID, effective)
	if err != nil {
		return failed(res, err)
	}
	if exists {
		res.Outcome = OutcomeAlreadyRecorded
		return res
	}
	_, err = r.store.Create(ctx, PendingBalance{
		AgentID:       m.agent.ID,
		AgentKey:      m.agent.Key,
		EffectiveDate: effective,
		Amount:        decision.Amount,
		Observations:  observations(decision, period),
	})
	switch {
	case errors.Is(err, ErrDuplicateBalance):
		res.Outcome = OutcomeAlreadyRecorded
	case err != nil:
		return failed(res, err)
	case decision.Cleared:
		res.Outcome = OutcomeCleared
	default:
		res.Outcome = OutcomeCarried
	}
	return res
}

// History returns the balance records of the account with the given key.
func (r *Reconciler) History(ctx context.Context, dir Directory, agentKey int) ([]PendingBalance, error) {
	agent, err := dir.Agent(agentKey)
	if err != nil {
		return nil, err
	}
	return r.store.History(ctx, agent.ID)
}

func (r *Reconciler) record(outcome Outcome) {
	if r.recorder != nil {
		r.recorder.RecordDecision(string(outcome))
	}
}

func observations(d Decision, period cutoff.Period) string {
	if d.Cleared {
		return fmt.Sprintf("Saldo liquidado en corte %s", period.Label())
	}
	return fmt.Sprintf("Saldo pendiente del corte %s", period.Label())
}

func failure(key int, id int64, err error) AgentResult {
	return failed(AgentResult{AgentKey: key, AgentID: id, Prior: decimal.Zero, PeriodTotal: decimal.Zero}, err)
}

func failed(res AgentResult, err error) AgentResult {
	res.Outcome = OutcomeFailed
	res.Error = err.Error()
	return res
}
