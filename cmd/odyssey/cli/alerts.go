package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/alerts"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate and configure alert rules",
}

var alertsEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one alert sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.services.Alerts.Evaluate(ctx, time.Time{})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "evaluated %d rules: %d created, %d suppressed, %d failed\n",
			result.Evaluated, len(result.Created), len(result.Suppressed), len(result.Failed))
		for _, ev := range result.Created {
			fmt.Fprintf(out, "  [%s] %s: %s\n", ev.Severity, ev.Type, ev.Message)
		}
		for _, f := range result.Failed {
			fmt.Fprintf(out, "  failed %s: %s\n", f.Type, f.Error)
		}
		return nil
	},
}

var alertsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert default rules for alert types without one",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		defaults, err := alerts.LoadDefaults(rt.cfg.AlertRulesFile)
		if err != nil {
			return err
		}
		created, err := rt.services.Alerts.SeedRules(ctx, defaults)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d of %d rules\n", created, len(defaults))
		return nil
	},
}

func init() {
	alertsCmd.AddCommand(alertsEvaluateCmd, alertsSeedCmd)
}
