package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/alerts"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// AlertEvaluator runs one alert sweep.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, now time.Time) (alerts.EvaluationResult, error)
}

// AlertSweepJob evaluates alert rules on a schedule.
type AlertSweepJob struct {
	Service AlertEvaluator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertSweepJob constructs the alert sweep handler.
func NewAlertSweepJob(service AlertEvaluator, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertSweepJob {
	return &AlertSweepJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep. Individual rule failures are reported by the
// service and do not fail the task.
func (j *AlertSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("alert sweep: dependencies not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskAlertSweep)

	result, err := j.Service.Evaluate(ctx, time.Time{})
	if err != nil {
		j.log().Error("alert sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddAlertOutcome("created", len(result.Created))
	metrics.AddAlertOutcome("suppressed", len(result.Suppressed))
	metrics.AddAlertOutcome("failed", len(result.Failed))
	j.log().Info("alert sweep completed",
		slog.Int("evaluated", result.Evaluated),
		slog.Int("created", len(result.Created)),
		slog.Int("failed", len(result.Failed)))
	return tracker.End(nil)
}

func (j *AlertSweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAlertSweep))
	}
	return slog.Default().With(slog.String("job", TaskAlertSweep))
}
