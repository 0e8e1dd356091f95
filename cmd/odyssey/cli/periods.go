package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

var (
	provisionYear  int
	provisionMonth int
	closeID        int64
	closeActor     int64
	closeAsync     bool
)

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "Manage fiscal periods",
}

var periodsProvisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create monthly fiscal periods for a year (or one month)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		var created []periods.Period
		if provisionMonth > 0 {
			p, err := rt.services.Periods.Provision(ctx, provisionYear, time.Month(provisionMonth))
			if err != nil {
				return err
			}
			created = append(created, p)
		} else {
			created, err = rt.services.Periods.ProvisionYear(ctx, provisionYear)
			if err != nil {
				return err
			}
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-6s %-8s %-10s %-10s %s\n", "ID", "PERIOD", "START", "END", "STATUS")
		for _, p := range created {
			fmt.Fprintf(out, "%-6d %-8s %-10s %-10s %s\n", p.ID, p.Code(), p.StartDate.Format(time.DateOnly), p.EndDate.Format(time.DateOnly), p.Status)
		}
		return nil
	},
}

var periodsCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close a fiscal period, or enqueue the close with --async",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if closeAsync {
			client, err := newJobsCLI(rt.cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer client.Close()
			info, err := client.EnqueuePeriodClose(ctx, jobs.PeriodClosePayload{PeriodID: closeID, ActorID: closeActor})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) on queue %s\n", info.ID, info.Type, info.Queue)
			return nil
		}

		p, err := rt.services.Periods.Close(ctx, periods.CloseInput{PeriodID: closeID, ActorID: closeActor})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "period %s closed\n", p.Code())
		return nil
	},
}

func init() {
	periodsProvisionCmd.Flags().IntVar(&provisionYear, "year", 0, "Fiscal year")
	periodsProvisionCmd.Flags().IntVar(&provisionMonth, "month", 0, "Single month (1-12); all months when omitted")
	_ = periodsProvisionCmd.MarkFlagRequired("year")

	periodsCloseCmd.Flags().Int64Var(&closeID, "id", 0, "Period ID")
	periodsCloseCmd.Flags().Int64Var(&closeActor, "actor", 0, "Acting user ID")
	periodsCloseCmd.Flags().BoolVar(&closeAsync, "async", false, "Enqueue the close for the worker")
	_ = periodsCloseCmd.MarkFlagRequired("id")

	periodsCmd.AddCommand(periodsProvisionCmd, periodsCloseCmd)
}
