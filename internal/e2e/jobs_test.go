package e2e

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/alerts"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type stubEvaluator struct {
	result alerts.EvaluationResult
	err    error
	calls  int
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ time.Time) (alerts.EvaluationResult, error) {
	s.calls++
	return s.result, s.err
}

type stubVerifier struct {
	issues []journals.IntegrityIssue
}

func (s *stubVerifier) VerifyIntegrity(context.Context) ([]journals.IntegrityIssue, error) {
	return s.issues, nil
}

type stubCloser struct {
	err   error
	input periods.CloseInput
}

func (s *stubCloser) Close(_ context.Context, in periods.CloseInput) (periods.Period, error) {
	s.input = in
	if s.err != nil {
		return periods.Period{}, s.err
	}
	return periods.Period{ID: in.PeriodID, Year: 2025, Month: time.March, Status: periods.PeriodStatusClosed}, nil
}

func newRegistry() (*prometheus.Registry, *jobmetrics.Metrics) {
	reg := prometheus.NewRegistry()
	return reg, jobmetrics.NewMetrics(reg)
}

func TestAlertSweepJobRecordsOutcomes(t *testing.T) {
	reg, metrics := newRegistry()
	evaluator := &stubEvaluator{result: alerts.EvaluationResult{
		Evaluated:  3,
		Created:    []alerts.Event{{Type: alerts.TypeCashLow}},
		Suppressed: []alerts.AlertType{alerts.TypeExpenseSpike},
		Failed:     []alerts.RuleFailure{{Type: alerts.TypeProjectMarginDrop, Error: "boom"}},
	}}

	job := jobs.NewAlertSweepJob(evaluator, nil, metrics)
	require.NoError(t, job.Handle(context.Background(), jobs.NewAlertSweepTask()))
	require.Equal(t, 1, evaluator.calls)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, assertCounter(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskAlertSweep, "status": "success"}, 1))
	require.True(t, assertCounter(t, families, "odyssey_alert_sweep_results_total", map[string]string{"outcome": "created"}, 1))
	require.True(t, assertCounter(t, families, "odyssey_alert_sweep_results_total", map[string]string{"outcome": "failed"}, 1))
	require.True(t, metricExists(families, "odyssey_job_duration_seconds"))
}

func TestAlertSweepJobFailure(t *testing.T) {
	reg, metrics := newRegistry()
	job := jobs.NewAlertSweepJob(&stubEvaluator{err: errors.New("db down")}, nil, metrics)
	require.Error(t, job.Handle(context.Background(), jobs.NewAlertSweepTask()))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, assertCounter(t, families, "odyssey_jobs_failures_total", map[string]string{"job": jobs.TaskAlertSweep}, 1))
}

func TestIntegrityJobCountsIssues(t *testing.T) {
	reg, metrics := newRegistry()
	verifier := &stubVerifier{issues: []journals.IntegrityIssue{{EntryID: 7, Debit: 100, Credit: 90, LineCount: 2}}}

	job := jobs.NewIntegrityJob(verifier, nil, metrics)
	require.NoError(t, job.Handle(context.Background(), jobs.NewLedgerIntegrityTask()))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, assertCounter(t, families, "odyssey_ledger_integrity_issues_total", nil, 1))
	require.True(t, assertCounter(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskLedgerIntegrity, "status": "success"}, 1))
}

func TestPeriodCloseJob(t *testing.T) {
	_, metrics := newRegistry()

	closer := &stubCloser{}
	job := jobs.NewPeriodCloseJob(closer, nil, metrics)
	task, err := jobs.NewPeriodCloseTask(jobs.PeriodClosePayload{PeriodID: 12, ActorID: 3})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, periods.CloseInput{PeriodID: 12, ActorID: 3}, closer.input)

	closer.err = shared.ErrPeriodAlreadyClosed
	require.NoError(t, job.Handle(context.Background(), task))

	closer.err = shared.ErrCloseInProgress
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, shared.ErrCloseInProgress)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	closer.err = shared.ErrPriorPeriodOpen
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	bad := asynq.NewTask(jobs.TaskPeriodClose, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	_, err = jobs.NewPeriodCloseTask(jobs.PeriodClosePayload{})
	require.Error(t, err)
}
