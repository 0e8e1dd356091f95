package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/alerts"
	analytichttp "github.com/odyssey-erp/odyssey-ledger/internal/analytics/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()
		return serve(ctx, rt)
	},
}

func serve(ctx context.Context, rt *runtime) error {
	logger := rt.logger
	svc := rt.services

	checks := map[string]app.HealthCheck{
		"postgres": func(ctx context.Context) error { return rt.pool.Ping(ctx) },
	}
	var jobHandler *jobs.Handler
	if rt.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, rt.redis) }

		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: rt.cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)

		if err := svc.AgingCache.ListenForInvalidation(ctx, ""); err != nil {
			logger.Warn("aging cache invalidation listener", slog.Any("error", err))
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          rt.cfg,
		Metrics:         rt.metrics,
		AccountsHandler: accounts.NewHandler(logger, svc.Accounts),
		JournalsHandler: journals.NewHandler(logger, svc.Ledger),
		ReportsHandler:  reports.NewHandler(logger, svc.Reports),
		PeriodsHandler:  periods.NewHandler(logger, svc.Periods),
		AgingHandler:    analytichttp.NewHandler(logger, svc.Aging),
		AlertsHandler:   alerts.NewHandler(logger, svc.Alerts),
		JobHandler:      jobHandler,
		HealthChecks:    checks,
	})

	server := &http.Server{
		Addr:         rt.cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  rt.cfg.AppReadTimeout,
		WriteTimeout: rt.cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", rt.cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server", slog.Any("error", err))
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
