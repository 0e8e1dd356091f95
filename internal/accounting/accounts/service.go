package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service manages the chart of accounts registry.
type Service struct {
	repo Repository
}

// NewService constructs the registry service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new account after validation.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	return s.repo.Insert(ctx, in)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(code))
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// ListByCodes returns the accounts matching codes; unknown codes are an error.
func (s *Service) ListByCodes(ctx context.Context, codes []string) ([]Account, error) {
	out, err := s.repo.ListByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	if len(out) != len(uniqueCodes(codes)) {
		return nil, fmt.Errorf("%w: some of %v", shared.ErrAccountNotFound, codes)
	}
	return out, nil
}

// Rename changes the display name; type and normal side never change.
func (s *Service) Rename(ctx context.Context, id int64, name string) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, fmt.Errorf("%w: account name required", shared.ErrInvalidInput)
	}
	return s.repo.UpdateName(ctx, id, name)
}

// Deactivate blocks further postings to the account.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, false)
}

// Activate re-enables postings to the account.
func (s *Service) Activate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, true)
}

// Delete removes an account that no journal line references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func uniqueCodes(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}
