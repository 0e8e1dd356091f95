package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository exposes the invoice and bill queries the engine relies on.
type Repository interface {
	OutstandingDocuments(ctx context.Context, side Side, asOf time.Time) ([]Document, error)
	PaidInvoices(ctx context.Context, from, to time.Time) ([]Document, error)
	RevenueByClient(ctx context.Context, from, to time.Time) ([]ClientRevenue, error)
}

// ClientRevenue sums invoiced revenue of one client.
type ClientRevenue struct {
	CounterpartyID int64
	Name           string
	Amount         int64
}

// AgingQuery parameterises ComputeAging.
type AgingQuery struct {
	AsOf             time.Time
	Side             Side
	IncludeNotYetDue bool
}

// Service coordinates aging computation with the cache layer.
type Service struct {
	repo   Repository
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Repository with a Cache helper. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ComputeAging returns the aging report for a side as of a date. Concurrent
// identical queries share one computation.
func (s *Service) ComputeAging(ctx context.Context, q AgingQuery) (AgingReport, error) {
	if q.AsOf.IsZero() {
		q.AsOf = s.now()
	}
	q.AsOf = shared.DateOnly(q.AsOf)
	if q.Side == "" {
		q.Side = SideReceivable
	}
	if q.Side != SideReceivable && q.Side != SidePayable {
		return AgingReport{}, fmt.Errorf("analytics: unknown side %q", q.Side)
	}
	opts := AgingOptions{IncludeNotYetDue: q.IncludeNotYetDue}
	base := keyAging(q.Side, q.AsOf, opts)

	ch := s.group.DoChan(base, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		loader := func(ctx context.Context) (any, error) {
			docs, err := s.repo.OutstandingDocuments(ctx, q.Side, q.AsOf)
			if err != nil {
				return nil, err
			}
			return ComputeAging(q.AsOf, q.Side, docs, opts), nil
		}
		key, err := s.cache.BuildKey(ctx, base)
		if err != nil {
			s.logger.Warn("aging cache unavailable", slog.Any("error", err))
			return loader(ctx)
		}
		var report AgingReport
		if err := s.cache.FetchJSON(ctx, key, &report, loader); err != nil {
			return nil, err
		}
		return report, nil
	})
	select {
	case <-ctx.Done():
		return AgingReport{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return AgingReport{}, res.Err
		}
		return res.Val.(AgingReport), nil
	}
}

// PaidInvoices lists invoices fully paid within [from, to].
func (s *Service) PaidInvoices(ctx context.Context, from, to time.Time) ([]Document, error) {
	return s.repo.PaidInvoices(ctx, shared.DateOnly(from), shared.DateOnly(to))
}

// RevenueByClient sums invoice totals issued within [from, to] per client.
func (s *Service) RevenueByClient(ctx context.Context, from, to time.Time) ([]ClientRevenue, error) {
	return s.repo.RevenueByClient(ctx, shared.DateOnly(from), shared.DateOnly(to))
}
