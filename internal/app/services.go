package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/alerts"
	"github.com/odyssey-erp/odyssey-ledger/internal/analytics"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Services holds the wired domain services shared by the server, worker and CLI.
type Services struct {
	Accounts   *accounts.Service
	Periods    *periods.Service
	Ledger     *journals.Service
	Reports    *reports.Service
	Aging      *analytics.Service
	AgingCache *analytics.Cache
	Alerts     *alerts.Service
}

// ServicesParams groups the infrastructure services are built on.
type ServicesParams struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewServices wires repositories, cache, lock and observers into services.
// A nil Redis client falls back to an in-process lock and no aging cache.
func NewServices(p ServicesParams) *Services {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := p.Config
	if cfg == nil {
		cfg = &Config{}
	}

	var cache *analytics.Cache
	periodOpts := []periods.Option{
		periods.WithLogger(logger.With(slog.String("module", "periods"))),
		periods.WithLockTTL(cfg.CloseLockTTL),
	}
	if p.Redis != nil {
		cache = analytics.NewCache(p.Redis, cfg.AgingCacheTTL)
		periodOpts = append(periodOpts,
			periods.WithLocker(locks.NewRedisLocker(p.Redis)),
			periods.WithInvalidator(cache))
	}

	chart := accounts.NewService(accounts.NewRepository(p.Pool))
	periodSvc := periods.NewService(periods.NewRepository(p.Pool), nil, periodOpts...)

	ledger := journals.NewService(journals.NewRepository(p.Pool), periodSvc, logger.With(slog.String("module", "journals")))
	if cache != nil {
		ledger.WithInvalidator(cache)
	}
	if p.Metrics != nil {
		ledger.WithObserver(p.Metrics)
	}
	periodSvc.SetBalanceSnapshotter(ledger)

	aging := analytics.NewService(analytics.NewRepository(p.Pool), cache, logger.With(slog.String("module", "aging")))

	alertSvc := alerts.NewService(alerts.NewRepository(p.Pool), alerts.Sources{
		Ledger:           ledger,
		Aging:            aging,
		CashAccountCodes: cfg.CashAccountCodes,
	}, logger.With(slog.String("module", "alerts")))
	if p.Metrics != nil {
		alertSvc.WithObserver(p.Metrics)
	}

	return &Services{
		Accounts:   chart,
		Periods:    periodSvc,
		Ledger:     ledger,
		Reports:    reports.NewService(ledger),
		Aging:      aging,
		AgingCache: cache,
		Alerts:     alertSvc,
	}
}
