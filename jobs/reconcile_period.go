package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/promotoria/comisiones/internal/balances"
	"github.com/promotoria/comisiones/internal/cutoff"
	jobmetrics "github.com/promotoria/comisiones/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ErrAccountsFailed is returned when a run settled some accounts but not all.
// Asynq retries the task; accounts already written are skipped on the retry.
var ErrAccountsFailed = errors.New("reconcile period: some accounts failed")

// PeriodReconciler settles one corte.
type PeriodReconciler interface {
	Reconcile(ctx context.Context, period cutoff.Period) (balances.Report, error)
}

// ReconcilePeriodJob runs the pending balance reconciliation.
type ReconcilePeriodJob struct {
	Reconciler PeriodReconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewReconcilePeriodJob constructs the job handler.
func NewReconcilePeriodJob(reconciler PeriodReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcilePeriodJob {
	return &ReconcilePeriodJob{
		Reconciler: reconciler,
		Logger:     logger,
		Metrics:    metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reconcile period job.
func (j *ReconcilePeriodJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile period: dependencies not configured")
	}
	var payload ReconcilePeriodPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("reconcile period: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskReconcilePeriod)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	period, err := j.resolvePeriod(payload)
	if err != nil {
		resultErr = fmt.Errorf("reconcile period: %v: %w", err, asynq.SkipRetry)
		j.log().Error("resolve corte", slog.Any("payload", payload), slog.Any("error", err))
		return resultErr
	}
	logger := j.log().With(slog.String("corte", period.Label()))

	report, err := j.Reconciler.Reconcile(ctx, period)
	if err != nil {
		resultErr = err
		logger.Error("reconcile corte", slog.Any("error", err))
		return resultErr
	}
	logger.Info("corte reconciled",
		slog.String("run_id", report.RunID),
		slog.Int("carried", report.Carried),
		slog.Int("cleared", report.Cleared),
		slog.Int("already_recorded", report.AlreadyRecorded),
		slog.Int("failed", report.Failed),
	)
	if report.Failed > 0 {
		resultErr = fmt.Errorf("%w: %d of %d", ErrAccountsFailed, report.Failed, len(report.Results))
	}
	return resultErr
}

func (j *ReconcilePeriodJob) resolvePeriod(payload ReconcilePeriodPayload) (cutoff.Period, error) {
	if payload.LastClosed() {
		return cutoff.LastClosed(j.now())
	}
	return payload.Period()
}

func (j *ReconcilePeriodJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconcilePeriodJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconcilePeriod))
	}
	return slog.Default().With(slog.String("job", TaskReconcilePeriod))
}

func (j *ReconcilePeriodJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ReconcilePeriodJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
