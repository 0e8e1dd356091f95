package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// PeriodCloser closes one period.
type PeriodCloser interface {
	Close(ctx context.Context, in periods.CloseInput) (periods.Period, error)
}

// PeriodCloseJob runs period closes in the background.
type PeriodCloseJob struct {
	Periods PeriodCloser
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPeriodCloseJob constructs the period close handler.
func NewPeriodCloseJob(closer PeriodCloser, logger *slog.Logger, metrics *jobmetrics.Metrics) *PeriodCloseJob {
	return &PeriodCloseJob{Periods: closer, Logger: logger, Metrics: metrics}
}

// Handle closes the period in the payload. A period that is already closed
// completes the task; lifecycle rejections are not retried.
func (j *PeriodCloseJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Periods == nil {
		return errors.New("period close: dependencies not configured")
	}
	var payload PeriodClosePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.PeriodID <= 0 {
		return asynq.SkipRetry
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskPeriodClose)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskPeriodClose), slog.Int64("period_id", payload.PeriodID))

	period, err := j.Periods.Close(ctx, periods.CloseInput{PeriodID: payload.PeriodID, ActorID: payload.ActorID})
	switch {
	case errors.Is(err, shared.ErrPeriodAlreadyClosed):
		logger.Info("period already closed")
		return tracker.End(nil)
	case errors.Is(err, shared.ErrCloseInProgress):
		logger.Warn("period close already running, will retry")
		return tracker.End(err)
	case errors.Is(err, shared.ErrPriorPeriodOpen), errors.Is(err, shared.ErrPeriodNotFound), errors.Is(err, shared.ErrInvalidInput):
		logger.Error("period close rejected", slog.Any("error", err))
		_ = tracker.End(err)
		return errors.Join(err, asynq.SkipRetry)
	case err != nil:
		logger.Error("period close failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("period closed", slog.String("period", period.Code()))
	return tracker.End(nil)
}
