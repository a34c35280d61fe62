// Package settlement orchestrates the commission workflow of a corte:
// importing receipts, reporting commissions and production, and settling
// pending balances.
package settlement

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promotoria/comisiones/internal/balances"
	"github.com/promotoria/comisiones/internal/commission"
	"github.com/promotoria/comisiones/internal/cutoff"
	"github.com/promotoria/comisiones/internal/platform/cache"
	"github.com/promotoria/comisiones/internal/receipts"
	"github.com/promotoria/comisiones/internal/refdata"
	"github.com/promotoria/comisiones/internal/upload"
)

// ReceiptStore persists and lists receipts.
type ReceiptStore interface {
	CreateReceipts(ctx context.Context, runID uuid.UUID, batch []receipts.Receipt) (int, error)
	ListByMovementMonth(ctx context.Context, year int, month time.Month) ([]receipts.Receipt, error)
}

// DirectoryLoader yields the reference data snapshot.
type DirectoryLoader interface {
	Load(ctx context.Context) (*refdata.Snapshot, error)
	Invalidate(ctx context.Context) error
}

// BalanceReconciler settles a corte into pending balances.
type BalanceReconciler interface {
	ReconcilePeriod(ctx context.Context, period cutoff.Period, dir balances.Directory) (balances.Report, error)
	History(ctx context.Context, dir balances.Directory, agentKey int) ([]balances.PendingBalance, error)
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Receipts   ReceiptStore
	Directory  DirectoryLoader
	Reconciler BalanceReconciler
	Engine     *commission.Engine
	// Reports caches commission and production reports. It may be nil.
	Reports *cache.Versioned
	// Invalidator is bumped after an import persisted receipts. It may be nil.
	Invalidator cache.Invalidator
	Upload      upload.Config
	Recorder    upload.Recorder
	Logger      *slog.Logger
}

// Service is the application layer shared by the HTTP API, the CLI and the worker.
type Service struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	if deps.Engine == nil {
		deps.Engine = commission.NewEngine(commission.DefaultRates())
	}
	if deps.Upload.ChunkSize <= 0 {
		deps.Upload = upload.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deps: deps, logger: logger, now: time.Now}
}

// WithNow overrides the clock used to find the last closed corte.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Cortes returns the cortes of a month.
func (s *Service) Cortes(year int, month time.Month) ([]cutoff.Period, error) {
	return cutoff.OfMonth(year, month)
}

// CommissionReport is the commission summary of one corte.
type CommissionReport struct {
	Period          cutoff.Period      `json:"period"`
	Label           string             `json:"label"`
	Receipts        int                `json:"receipts"`
	Dropped         int                `json:"dropped"`
	Agents          []commission.Total `json:"agents"`
	Supervisors     []commission.Total `json:"supervisors"`
	AgentTotal      decimal.Decimal    `json:"agent_total"`
	SupervisorTotal decimal.Decimal    `json:"supervisor_total"`
}

// Commissions summarises the effective agent and supervisor commissions of a corte.
func (s *Service) Commissions(ctx context.Context, period cutoff.Period) (CommissionReport, error) {
	return cachedReport(ctx, s, func(ctx context.Context) (CommissionReport, error) {
		snap, err := s.deps.Directory.Load(ctx)
		if err != nil {
			return CommissionReport{}, err
		}
		filtered, err := s.periodReceipts(ctx, period)
		if err != nil {
			return CommissionReport{}, err
		}
		summary := commission.Summarize(filtered.Receipts, snap)
		return CommissionReport{
			Period:          period,
			Label:           period.Label(),
			Receipts:        len(filtered.Receipts),
			Dropped:         filtered.Dropped,
			Agents:          summary.Agents,
			Supervisors:     summary.Supervisors,
			AgentTotal:      sum(summary.Agents),
			SupervisorTotal: sum(summary.Supervisors),
		}, nil
	}, "commissions", periodKey(period))
}

// ProductionReport is the annualised production of one corte.
type ProductionReport struct {
	Period     cutoff.Period               `json:"period"`
	Label      string                      `json:"label"`
	Lines      []commission.ProductionLine `json:"lines"`
	Annualized decimal.Decimal             `json:"annualized"`
}

// Production reports annualised production per agent for a corte.
func (s *Service) Production(ctx context.Context, period cutoff.Period) (ProductionReport, error) {
	return cachedReport(ctx, s, func(ctx context.Context) (ProductionReport, error) {
		filtered, err := s.periodReceipts(ctx, period)
		if err != nil {
			return ProductionReport{}, err
		}
		lines := commission.Production(filtered.Receipts)
		total := decimal.Zero
		for _, l := range lines {
			total = total.Add(l.Annualized)
		}
		return ProductionReport{Period: period, Label: period.Label(), Lines: lines, Annualized: total}, nil
	}, "production", periodKey(period))
}

// ImportOptions tunes an Import call.
type ImportOptions struct {
	// Sheet names the worksheet to read; empty selects the first one.
	Sheet      string
	OnProgress func(upload.Progress)
}

// ImportResult is the outcome of importing a receipt workbook.
type ImportResult struct {
	Ingest receipts.IngestReport `json:"ingest"`
	Upload upload.Result         `json:"upload"`
}

// Import reads a receipt workbook, derives commissions and uploads the
// receipts in chunks. Structural sheet errors abort before anything is
// written; chunk failures are reported in the result.
func (s *Service) Import(ctx context.Context, r io.Reader, opts ImportOptions) (ImportResult, error) {
	snap, err := s.deps.Directory.Load(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("settlement: load directory: %w", err)
	}
	ingestion, err := receipts.ReadWorkbook(r, opts.Sheet, snap, s.logger)
	if err != nil {
		return ImportResult{}, err
	}
	derived := commission.NewDeriver(s.deps.Engine, snap).DeriveAll(ingestion.Receipts)

	runID := uuid.New()
	gate := upload.GateFunc[receipts.Receipt](func(ctx context.Context, batch []receipts.Receipt) (int, error) {
		return s.deps.Receipts.CreateReceipts(ctx, runID, batch)
	})
	pipeline := upload.New[receipts.Receipt](gate, s.deps.Upload, s.logger).
		WithRunID(runID).
		WithInvalidator(s.deps.Invalidator).
		WithRecorder(s.deps.Recorder)

	res := pipeline.Run(ctx, derived, opts.OnProgress)
	return ImportResult{Ingest: ingestion.Report, Upload: res}, nil
}

// Reconcile settles one corte into pending balances.
func (s *Service) Reconcile(ctx context.Context, period cutoff.Period) (balances.Report, error) {
	snap, err := s.deps.Directory.Load(ctx)
	if err != nil {
		return balances.Report{}, fmt.Errorf("settlement: load directory: %w", err)
	}
	return s.deps.Reconciler.ReconcilePeriod(ctx, period, snap)
}

// ReconcileLastClosed settles the most recent corte that has already ended.
func (s *Service) ReconcileLastClosed(ctx context.Context) (balances.Report, error) {
	period, err := cutoff.LastClosed(s.now())
	if err != nil {
		return balances.Report{}, err
	}
	return s.Reconcile(ctx, period)
}

// Balances returns the pending balance history of an agent.
func (s *Service) Balances(ctx context.Context, agentKey int) ([]balances.PendingBalance, error) {
	snap, err := s.deps.Directory.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("settlement: load directory: %w", err)
	}
	return s.deps.Reconciler.History(ctx, snap, agentKey)
}

// RefreshDirectory drops the cached reference data and the reports built on it.
func (s *Service) RefreshDirectory(ctx context.Context) error {
	if err := s.deps.Directory.Invalidate(ctx); err != nil {
		return err
	}
	if s.deps.Invalidator == nil {
		return nil
	}
	return s.deps.Invalidator.Bump(ctx)
}

func (s *Service) periodReceipts(ctx context.Context, period cutoff.Period) (receipts.FilterResult, error) {
	month, err := s.deps.Receipts.ListByMovementMonth(ctx, period.Year, period.Month)
	if err != nil {
		return receipts.FilterResult{}, fmt.Errorf("settlement: list receipts: %w", err)
	}
	return receipts.FilterByPeriod(month, period), nil
}

// cachedReport serves a report from the reports cache, building it on a
// miss. A cache outage degrades to building the report directly.
func cachedReport[T any](ctx context.Context, s *Service, build func(context.Context) (T, error), parts ...string) (T, error) {
	var (
		out      T
		buildErr error
		built    bool
	)
	loader := func(ctx context.Context) (any, error) {
		built = true
		v, err := build(ctx)
		buildErr = err
		return v, err
	}
	key, err := s.deps.Reports.BuildKey(ctx, append([]string{"reports"}, parts...)...)
	if err == nil {
		if _, err = s.deps.Reports.FetchJSON(ctx, key, &out, loader); err == nil {
			return out, nil
		}
		if built && buildErr != nil {
			return out, buildErr
		}
	}
	s.logger.Warn("reports cache unavailable", slog.Any("parts", parts), slog.Any("error", err))
	return build(ctx)
}

func periodKey(p cutoff.Period) string {
	return strconv.Itoa(p.Year) + "-" + strconv.Itoa(int(p.Month)) + "-" + strconv.Itoa(p.Index)
}

func sum(totals []commission.Total) decimal.Decimal {
	out := decimal.Zero
	for _, t := range totals {
		out = out.Add(t.Amount)
	}
	return out
}
