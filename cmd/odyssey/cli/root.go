package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

var rootCmd = &cobra.Command{
	Use:           "odyssey",
	Short:         "Double-entry general ledger with fiscal periods, aging and alerts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, periodsCmd, alertsCmd, jobsCmd)
}

// Execute runs the root command with a signal-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// runtime holds the infrastructure opened for one command invocation.
type runtime struct {
	cfg      *app.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	redis    *redis.Client
	metrics  *observability.Metrics
	services *app.Services
}

// openRuntime loads configuration and connects to Postgres and Redis. Redis is
// optional: without it the close lock is process-local and aging is uncached.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, pool: pool, metrics: observability.NewMetrics()}

	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, continuing without cache and distributed lock", slog.Any("error", err))
	} else {
		rt.redis = client
	}

	rt.services = app.NewServices(app.ServicesParams{
		Pool:    pool,
		Redis:   rt.redis,
		Config:  cfg,
		Logger:  logger,
		Metrics: rt.metrics,
	})
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	rt.pool.Close()
}
