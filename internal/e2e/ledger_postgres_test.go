//go:build integration

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestLedgerLifecycleAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	migrator, err := db.NewMigrator(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 3, version)
	require.NoError(t, migrator.Close())

	pool, err := db.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	chart := accounts.NewService(accounts.NewRepository(pool))
	cash, err := chart.Create(ctx, accounts.CreateInput{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset})
	require.NoError(t, err)
	revenue, err := chart.Create(ctx, accounts.CreateInput{Code: "4000", Name: "Sales", Type: accounts.AccountTypeRevenue})
	require.NoError(t, err)
	_, err = chart.Create(ctx, accounts.CreateInput{Code: "1000", Name: "Dup", Type: accounts.AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrDuplicateAccountCode)

	periodSvc := periods.NewService(periods.NewRepository(pool), nil)
	march, err := periodSvc.Provision(ctx, 2025, time.March)
	require.NoError(t, err)

	ledger := journals.NewService(journals.NewRepository(pool), periodSvc, nil)
	periodSvc.SetBalanceSnapshotter(ledger)

	draft := journals.Draft{
		Date:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Description: "Cash sale",
		Lines: []journals.DraftLine{
			{AccountID: cash.ID, Side: accounts.SideDebit, Amount: 50000, Tags: []string{"project:alpha"}},
			{AccountID: revenue.ID, Side: accounts.SideCredit, Amount: 50000, Tags: []string{"project:alpha"}},
		},
	}
	entry, err := ledger.Post(ctx, draft)
	require.NoError(t, err)
	require.Equal(t, "JE-202503-00001", entry.Reference)

	asOf := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	balance, err := ledger.AccountBalance(ctx, cash.ID, asOf)
	require.NoError(t, err)
	require.Equal(t, int64(50000), balance)

	movement, err := ledger.MovementByType(ctx, accounts.AccountTypeRevenue, "project:alpha", march.StartDate, march.EndDate)
	require.NoError(t, err)
	require.Equal(t, int64(50000), movement)

	second, err := ledger.Post(ctx, draft)
	require.NoError(t, err)
	_, err = ledger.Void(ctx, journals.VoidInput{EntryID: second.ID, ActorID: 1, Reason: "duplicate"})
	require.NoError(t, err)
	_, err = ledger.Void(ctx, journals.VoidInput{EntryID: second.ID, ActorID: 1, Reason: "again"})
	require.ErrorIs(t, err, shared.ErrAlreadyVoid)

	balance, err = ledger.AccountBalance(ctx, cash.ID, asOf)
	require.NoError(t, err)
	require.Equal(t, int64(50000), balance)

	issues, err := ledger.VerifyIntegrity(ctx)
	require.NoError(t, err)
	require.Empty(t, issues)

	tb, err := reports.NewService(ledger).TrialBalance(ctx, march.StartDate, march.EndDate)
	require.NoError(t, err)
	require.True(t, tb.Balanced())
	require.Equal(t, int64(50000), tb.TotalDebit)

	closed, err := periodSvc.Close(ctx, periods.CloseInput{PeriodID: march.ID, ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusClosed, closed.Status)

	snapshots, err := periodSvc.Snapshots(ctx, march.ID)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	april, err := periodSvc.Resolve(ctx, time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusOpen, april.Status)
	openings, err := periodSvc.Snapshots(ctx, april.ID)
	require.NoError(t, err)
	opening := make(map[int64]int64, len(openings))
	for _, snap := range openings {
		opening[snap.AccountID] = snap.Opening
	}

	for _, snap := range snapshots {
		require.NotNil(t, snap.Closing)
		live, err := ledger.AccountBalance(ctx, snap.AccountID, march.EndDate)
		require.NoError(t, err)
		require.Equal(t, live, *snap.Closing, "account %d", snap.AccountID)
		require.Equal(t, *snap.Closing, opening[snap.AccountID], "account %d", snap.AccountID)
	}
	require.Contains(t, opening, cash.ID)
	require.Equal(t, int64(50000), opening[cash.ID])
	require.Equal(t, int64(50000), opening[revenue.ID])

	_, err = ledger.Post(ctx, draft)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
}
