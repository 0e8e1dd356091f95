package reports

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TotalsReader aggregates posted ledger lines per account.
type TotalsReader interface {
	AccountTotals(ctx context.Context, from *time.Time, to time.Time) ([]journals.AccountTotals, error)
}

// Service derives financial statements from ledger totals.
type Service struct {
	ledger TotalsReader
	now    func() time.Time
}

func NewService(ledger TotalsReader) *Service {
	return &Service{ledger: ledger, now: time.Now}
}

// WithNow overrides the clock used for default report ranges.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Balances returns each account's balance before from and its movements within [from, to].
func (s *Service) Balances(ctx context.Context, from, to time.Time) ([]AccountBalance, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to precedes from", shared.ErrInvalidInput)
	}
	var opening, movement []journals.AccountTotals
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		opening, err = s.ledger.AccountTotals(gctx, nil, from.AddDate(0, 0, -1))
		return err
	})
	g.Go(func() error {
		var err error
		movement, err = s.ledger.AccountTotals(gctx, &from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	openings := make(map[int64]int64, len(opening))
	for _, t := range opening {
		openings[t.Account.ID] = t.Balance()
	}
	out := make([]AccountBalance, 0, len(movement))
	for _, t := range movement {
		out = append(out, AccountBalance{
			Code:       t.Account.Code,
			Name:       t.Account.Name,
			Type:       t.Account.Type,
			NormalSide: t.Account.NormalSide,
			Opening:    openings[t.Account.ID],
			Debit:      t.Debit,
			Credit:     t.Credit,
		})
	}
	return out, nil
}

func (s *Service) TrialBalance(ctx context.Context, from, to time.Time) (TrialBalance, error) {
	balances, err := s.Balances(ctx, from, to)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(balances), nil
}

func (s *Service) ProfitAndLoss(ctx context.Context, from, to time.Time) (ProfitAndLoss, error) {
	balances, err := s.Balances(ctx, from, to)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return BuildProfitAndLoss(balances), nil
}

// BalanceSheet reports cumulative balances as of a date.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	totals, err := s.ledger.AccountTotals(ctx, nil, shared.DateOnly(asOf))
	if err != nil {
		return BalanceSheet{}, err
	}
	balances := make([]AccountBalance, 0, len(totals))
	for _, t := range totals {
		balances = append(balances, AccountBalance{
			Code:       t.Account.Code,
			Name:       t.Account.Name,
			Type:       t.Account.Type,
			NormalSide: t.Account.NormalSide,
			Debit:      t.Debit,
			Credit:     t.Credit,
		})
	}
	return BuildBalanceSheet(balances), nil
}
