package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// IntegrityVerifier lists unbalanced posted entries.
type IntegrityVerifier interface {
	VerifyIntegrity(ctx context.Context) ([]journals.IntegrityIssue, error)
}

// IntegrityJob checks the ledger for entries whose lines do not balance.
type IntegrityJob struct {
	Ledger  IntegrityVerifier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob constructs the integrity handler.
func NewIntegrityJob(ledger IntegrityVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle runs the verification. Violations are counted and logged; retrying
// cannot fix them, so the task still succeeds.
func (j *IntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: dependencies not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskLedgerIntegrity)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskLedgerIntegrity))

	issues, err := j.Ledger.VerifyIntegrity(ctx)
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddIntegrityIssues(len(issues))
	if len(issues) > 0 {
		logger.Error("ledger integrity violations found", slog.Int("entries", len(issues)))
	} else {
		logger.Info("ledger integrity verified")
	}
	return tracker.End(nil)
}
