package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// EnqueuePeriodClose forwards to the jobs client.
func (c *JobsCLI) EnqueuePeriodClose(ctx context.Context, payload jobs.PeriodClosePayload) (*asynq.TaskInfo, error) {
	return c.client.EnqueuePeriodClose(ctx, payload)
}

// Trigger enqueues a supported job by name. periods:close takes the period id
// as its argument.
func (c *JobsCLI) Trigger(ctx context.Context, name string, args []string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskAlertSweep:
		return c.client.EnqueueAlertSweep(ctx)
	case jobs.TaskLedgerIntegrity:
		return c.client.EnqueueLedgerIntegrity(ctx)
	case jobs.TaskPeriodClose:
		if len(args) == 0 {
			return nil, errors.New("jobs cli: periods:close requires a period id")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("jobs cli: invalid period id %q", args[0])
		}
		return c.client.EnqueuePeriodClose(ctx, jobs.PeriodClosePayload{PeriodID: id})
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueues reports the metrics of every ledger queue.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, queue := range []string{jobs.QueueCritical, jobs.QueueDefault} {
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil {
			return nil, err
		}
		stats := QueueStats{Queue: queue}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
		}
		out = append(out, stats)
	}
	return out, nil
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Trigger and inspect background jobs",
}

var jobsTriggerCmd = &cobra.Command{
	Use:       "trigger <alerts:evaluate|ledger:integrity|periods:close> [period-id]",
	Short:     "Enqueue a job for the worker",
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{jobs.TaskAlertSweep, jobs.TaskLedgerIntegrity, jobs.TaskPeriodClose},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		c, err := newJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer c.Close()
		info, err := c.Trigger(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) on queue %s\n", info.ID, info.Type, info.Queue)
		return nil
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		c, err := newJobsCLI(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer c.Close()
		stats, err := c.InspectQueues()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-10s %8s %8s %10s %6s\n", "QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY")
		for _, s := range stats {
			fmt.Fprintf(out, "%-10s %8d %8d %10d %6d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
		}
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsTriggerCmd, jobsStatsCmd)
}
