package accounts

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestCreateDefaultsNormalSide(t *testing.T) {
	svc := NewService(newMemoryRepo())
	cases := map[AccountType]Side{
		AccountTypeAsset:     SideDebit,
		AccountTypeExpense:   SideDebit,
		AccountTypeLiability: SideCredit,
		AccountTypeEquity:    SideCredit,
		AccountTypeRevenue:   SideCredit,
	}
	i := 0
	for typ, side := range cases {
		i++
		acct, err := svc.Create(context.Background(), CreateInput{Code: string(rune('A' + i)), Name: "x", Type: typ})
		require.NoError(t, err)
		require.Equal(t, side, acct.NormalSide, typ)
		require.True(t, acct.IsActive)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Create(context.Background(), CreateInput{Code: "1000", Name: "Cash", Type: "CASHFLOW"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Create(context.Background(), CreateInput{Code: " ", Name: "Cash", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Create(context.Background(), CreateInput{Code: "1000", Name: "Cash", Type: "asset"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateInput{Code: "1000", Name: "Cash 2", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrDuplicateAccountCode)
}

func TestListByCodesRequiresAll(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Create(context.Background(), CreateInput{Code: "1000", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	got, err := svc.ListByCodes(context.Background(), []string{"1000", "1000"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = svc.ListByCodes(context.Background(), []string{"1000", "1010"})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestRenameAndDeactivate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	acct, err := svc.Create(context.Background(), CreateInput{Code: "1000", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	renamed, err := svc.Rename(context.Background(), acct.ID, "Petty cash")
	require.NoError(t, err)
	require.Equal(t, "Petty cash", renamed.Name)
	require.Equal(t, AccountTypeAsset, renamed.Type)

	require.NoError(t, svc.Deactivate(context.Background(), acct.ID))
	got, err := svc.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	repo.referenced[acct.ID] = true
	require.ErrorIs(t, svc.Delete(context.Background(), acct.ID), shared.ErrAccountReferenced)
}

func TestOrient(t *testing.T) {
	require.Equal(t, int64(70), Account{NormalSide: SideDebit}.Orient(100, 30))
	require.Equal(t, int64(-70), Account{NormalSide: SideCredit}.Orient(100, 30))
}

type memoryRepo struct {
	nextID     int64
	accounts   map[int64]Account
	referenced map[int64]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: map[int64]Account{}, referenced: map[int64]bool{}}
}

func (m *memoryRepo) Insert(_ context.Context, in CreateInput) (Account, error) {
	for _, a := range m.accounts {
		if a.Code == in.Code {
			return Account{}, shared.ErrDuplicateAccountCode
		}
	}
	m.nextID++
	a := Account{ID: m.nextID, Code: in.Code, Name: in.Name, Type: in.Type, NormalSide: in.NormalSide, IsActive: true, CreatedAt: time.Now()}
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryRepo) GetByCode(_ context.Context, code string) (Account, error) {
	for _, a := range m.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, shared.ErrAccountNotFound
}

func (m *memoryRepo) List(_ context.Context) ([]Account, error) {
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryRepo) ListByCodes(ctx context.Context, codes []string) ([]Account, error) {
	set := uniqueCodes(codes)
	all, _ := m.List(ctx)
	var out []Account
	for _, a := range all {
		if _, ok := set[a.Code]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryRepo) UpdateName(_ context.Context, id int64, name string) (Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	a.Name = name
	m.accounts[id] = a
	return a, nil
}

func (m *memoryRepo) SetActive(_ context.Context, id int64, active bool) error {
	a, ok := m.accounts[id]
	if !ok {
		return shared.ErrAccountNotFound
	}
	a.IsActive = active
	m.accounts[id] = a
	return nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.accounts[id]; !ok {
		return shared.ErrAccountNotFound
	}
	if m.referenced[id] {
		return shared.ErrAccountReferenced
	}
	delete(m.accounts, id)
	return nil
}
