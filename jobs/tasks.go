package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/promotoria/comisiones/internal/cutoff"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcilePeriod settles a corte into pending balances.
	TaskReconcilePeriod = "balances:reconcile_period"
)

// ReconcilePeriodPayload names the corte to settle. A zero payload selects
// the most recent corte that has already closed when the task runs.
type ReconcilePeriodPayload struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Index int `json:"index,omitempty"`
}

// LastClosed reports whether the payload defers the corte choice to run time.
func (p ReconcilePeriodPayload) LastClosed() bool {
	return p.Year == 0 && p.Month == 0 && p.Index == 0
}

// Period resolves an explicit payload to its corte.
func (p ReconcilePeriodPayload) Period() (cutoff.Period, error) {
	return cutoff.Find(p.Year, time.Month(p.Month), p.Index)
}

// PayloadFor builds the payload of an explicit corte.
func PayloadFor(period cutoff.Period) ReconcilePeriodPayload {
	return ReconcilePeriodPayload{Year: period.Year, Month: int(period.Month), Index: period.Index}
}

// NewReconcilePeriodTask constructs the Asynq task. Explicit payloads are
// validated up front so a bad corte never reaches the queue.
func NewReconcilePeriodTask(payload ReconcilePeriodPayload) (*asynq.Task, error) {
	if !payload.LastClosed() {
		if _, err := payload.Period(); err != nil {
			return nil, fmt.Errorf("jobs: reconcile task: %w", err)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcilePeriod, body, asynq.Queue(QueueDefault)), nil
}
