package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries period close work ahead of sweeps.
	QueueCritical = "critical"

	// TaskAlertSweep evaluates every enabled alert rule.
	TaskAlertSweep = "alerts:evaluate"
	// TaskLedgerIntegrity verifies that every posted entry balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskPeriodClose closes (or resumes closing) one fiscal period.
	TaskPeriodClose = "periods:close"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PeriodClosePayload identifies the period to close and the acting user.
type PeriodClosePayload struct {
	PeriodID int64 `json:"period_id"`
	ActorID  int64 `json:"actor_id"`
}

// NewAlertSweepTask builds the alert sweep task.
func NewAlertSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAlertSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// NewLedgerIntegrityTask builds the integrity verification task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// NewPeriodCloseTask builds a period close task. Retries resume a close that
// stopped while CLOSING.
func NewPeriodCloseTask(payload PeriodClosePayload) (*asynq.Task, error) {
	if payload.PeriodID <= 0 {
		return nil, fmt.Errorf("jobs: period id must be positive")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPeriodClose, data, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}
