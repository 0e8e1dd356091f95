package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DefaultCloseLockTTL bounds how long a close attempt holds the period lock.
const DefaultCloseLockTTL = 10 * time.Minute

// BalanceSnapshotter computes normal-side balances for every account as of a date.
type BalanceSnapshotter interface {
	BalancesAsOf(ctx context.Context, asOf time.Time) (map[int64]int64, error)
}

// Invalidator is notified after a period changes state.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service controls the fiscal period lifecycle.
type Service struct {
	repo        Repository
	locker      locks.Locker
	balances    BalanceSnapshotter
	invalidator Invalidator
	logger      *slog.Logger
	lockTTL     time.Duration
	now         func() time.Time
}

// Option customises the Service.
type Option func(*Service)

// WithLocker sets the close lock implementation.
func WithLocker(l locks.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLockTTL overrides the close lock expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithInvalidator registers a cache invalidation hook.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the period controller. balances may be nil when the
// caller never closes periods (e.g. the ledger's resolver wiring).
func NewService(repo Repository, balances BalanceSnapshotter, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		balances: balances,
		locker:   locks.NewLocalLocker(),
		logger:   slog.Default(),
		lockTTL:  DefaultCloseLockTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBalanceSnapshotter wires the ledger after construction; the ledger itself
// depends on the period service.
func (s *Service) SetBalanceSnapshotter(b BalanceSnapshotter) {
	s.balances = b
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Provision creates the period for year/month when missing. Repeated calls return the same period.
func (s *Service) Provision(ctx context.Context, year int, month time.Month) (Period, error) {
	key := Key{Year: year, Month: month}
	if err := key.Validate(); err != nil {
		return Period{}, err
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.Insert(ctx, key)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// ProvisionYear provisions all twelve periods of year.
func (s *Service) ProvisionYear(ctx context.Context, year int) ([]Period, error) {
	if err := (Key{Year: year, Month: time.January}).Validate(); err != nil {
		return nil, err
	}
	out := make([]Period, 0, 12)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for m := time.January; m <= time.December; m++ {
			p, err := tx.Insert(ctx, Key{Year: year, Month: m})
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve returns the period covering date.
func (s *Service) Resolve(ctx context.Context, date time.Time) (Period, error) {
	if date.IsZero() {
		return Period{}, fmt.Errorf("%w: date required", shared.ErrInvalidInput)
	}
	p, err := s.repo.FindByKey(ctx, KeyOf(date))
	if errors.Is(err, shared.ErrPeriodNotFound) {
		return Period{}, fmt.Errorf("%w: %s", shared.ErrNoPeriodProvisioned, date.Format(shared.DateLayout))
	}
	return p, err
}

// RequireOpen fails unless the period exists and is OPEN.
func (s *Service) RequireOpen(ctx context.Context, id int64) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return p.RequireOpen()
}

func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// List returns periods of year, or every period when year is zero.
func (s *Service) List(ctx context.Context, year int) ([]Period, error) {
	return s.repo.List(ctx, year)
}

// Snapshots returns the frozen opening/closing balances of a period.
func (s *Service) Snapshots(ctx context.Context, periodID int64) ([]BalanceSnapshot, error) {
	if _, err := s.repo.Get(ctx, periodID); err != nil {
		return nil, err
	}
	return s.repo.Snapshots(ctx, periodID)
}

// Close freezes the period balances, seeds the next period and marks it CLOSED.
// A failure after the CLOSING transition leaves the period CLOSING; calling
// Close again resumes from the snapshot step.
func (s *Service) Close(ctx context.Context, in CloseInput) (Period, error) {
	if in.PeriodID == 0 {
		return Period{}, fmt.Errorf("%w: period id required", shared.ErrInvalidInput)
	}
	if s.balances == nil {
		return Period{}, errors.New("periods: balance snapshotter not configured")
	}
	unlock, err := s.locker.TryLock(ctx, locks.FinanceLockKey(in.PeriodID), s.lockTTL)
	if err != nil {
		if errors.Is(err, locks.ErrLockHeld) {
			return Period{}, shared.ErrCloseInProgress
		}
		return Period{}, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("period close unlock failed", slog.Int64("period_id", in.PeriodID), slog.Any("error", err))
		}
	}()

	period, resumed, err := s.beginClose(ctx, in.PeriodID)
	if err != nil {
		return Period{}, err
	}
	logger := s.logger.With(slog.Int64("period_id", period.ID), slog.String("period", period.Code()))
	if resumed {
		logger.Info("resuming period close")
	}

	balances, err := s.balances.BalancesAsOf(ctx, period.EndDate)
	if err != nil {
		logger.Error("period close snapshot failed", slog.Any("error", err))
		return Period{}, fmt.Errorf("periods: close %s: compute balances: %w", period.Code(), err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SaveClosingBalances(ctx, period.ID, balances)
	})
	if err != nil {
		logger.Error("period close freeze failed", slog.Any("error", err))
		return Period{}, fmt.Errorf("periods: close %s: freeze balances: %w", period.Code(), err)
	}

	closedAt := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		next, err := tx.Insert(ctx, KeyOf(period.StartDate).Next())
		if err != nil {
			return err
		}
		if err := tx.SaveOpeningBalances(ctx, next.ID, balances); err != nil {
			return err
		}
		return tx.MarkClosed(ctx, period.ID, in.ActorID, closedAt)
	})
	if err != nil {
		logger.Error("period close finalise failed", slog.Any("error", err))
		return Period{}, fmt.Errorf("periods: close %s: finalise: %w", period.Code(), err)
	}

	period.Status = PeriodStatusClosed
	period.ClosedAt = &closedAt
	if in.ActorID != 0 {
		actor := in.ActorID
		period.ClosedBy = &actor
	}
	logger.Info("period closed", slog.Int("accounts", len(balances)))
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			logger.Warn("cache invalidation failed", slog.Any("error", err))
		}
	}
	return period, nil
}

func (s *Service) beginClose(ctx context.Context, id int64) (Period, bool, error) {
	var period Period
	var resumed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch p.Status {
		case PeriodStatusClosed:
			return shared.ErrPeriodAlreadyClosed
		case PeriodStatusClosing:
			resumed = true
		case PeriodStatusOpen:
			earlier, err := tx.HasUnclosedBefore(ctx, KeyOf(p.StartDate))
			if err != nil {
				return err
			}
			if earlier {
				return shared.ErrPriorPeriodOpen
			}
			closing, err := tx.HasOtherClosing(ctx, p.ID)
			if err != nil {
				return err
			}
			if closing {
				return shared.ErrCloseInProgress
			}
			startedAt := s.now().UTC()
			if err := tx.MarkClosing(ctx, p.ID, startedAt); err != nil {
				return err
			}
			p.Status = PeriodStatusClosing
			p.CloseStartedAt = &startedAt
		default:
			return fmt.Errorf("%w: unknown period status %q", shared.ErrInvalidStatus, p.Status)
		}
		period = p
		return nil
	})
	return period, resumed, err
}
