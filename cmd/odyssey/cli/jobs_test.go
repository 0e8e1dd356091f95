package cli

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func TestTriggerValidatesArguments(t *testing.T) {
	srv := miniredis.RunT(t)
	c, err := newJobsCLI(srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Trigger(context.Background(), "reports:nightly", nil)
	require.ErrorContains(t, err, "unsupported job")

	_, err = c.Trigger(context.Background(), jobs.TaskPeriodClose, nil)
	require.ErrorContains(t, err, "requires a period id")

	_, err = c.Trigger(context.Background(), jobs.TaskPeriodClose, []string{"abc"})
	require.ErrorContains(t, err, "invalid period id")

	_, err = c.Trigger(context.Background(), jobs.TaskPeriodClose, []string{"0"})
	require.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "periods", "alerts", "jobs"} {
		require.True(t, names[want], "missing command %s", want)
	}

	cmd, _, err := rootCmd.Find([]string{"periods", "close"})
	require.NoError(t, err)
	require.NotNil(t, cmd.Flags().Lookup("async"))
}

func TestNilJobsCLI(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskAlertSweep, nil)
	require.Error(t, err)
	_, err = c.InspectQueues()
	require.Error(t, err)
}
