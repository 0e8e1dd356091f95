package periods

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestProvisionIsIdempotent(t *testing.T) {
	svc, repo := newTestService(nil)
	first, err := svc.Provision(context.Background(), 2025, time.March)
	require.NoError(t, err)
	second, err := svc.Provision(context.Background(), 2025, time.March)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.periods, 1)
	require.Equal(t, "2025-03", first.Code())
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), first.EndDate)
}

func TestProvisionRejectsInvalidMonth(t *testing.T) {
	svc, _ := newTestService(nil)
	_, err := svc.Provision(context.Background(), 2025, 13)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestResolve(t *testing.T) {
	svc, _ := newTestService(nil)
	_, err := svc.ProvisionYear(context.Background(), 2025)
	require.NoError(t, err)

	p, err := svc.Resolve(context.Background(), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, time.February, p.Month)
	require.True(t, p.Contains(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))

	_, err = svc.Resolve(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, shared.ErrNoPeriodProvisioned)
	require.Equal(t, shared.ClassDataAvailability, shared.Classify(err))
}

func TestRequireOpen(t *testing.T) {
	svc, repo := newTestService(nil)
	p, err := svc.Provision(context.Background(), 2025, time.January)
	require.NoError(t, err)
	require.NoError(t, svc.RequireOpen(context.Background(), p.ID))

	repo.setStatus(p.ID, PeriodStatusClosing)
	require.ErrorIs(t, svc.RequireOpen(context.Background(), p.ID), shared.ErrPeriodClosed)

	require.ErrorIs(t, svc.RequireOpen(context.Background(), 999), shared.ErrPeriodNotFound)
}

func TestCloseFreezesBalancesAndSeedsNextPeriod(t *testing.T) {
	balances := &stubSnapshotter{balances: map[int64]int64{1: 1000, 2: -1000}}
	svc, repo := newTestService(balances)
	jan, err := svc.Provision(context.Background(), 2025, time.January)
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), CloseInput{PeriodID: jan.ID, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, int64(7), *closed.ClosedBy)
	require.Equal(t, jan.EndDate, balances.lastAsOf)

	snaps, err := svc.Snapshots(context.Background(), jan.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, int64(1000), *snaps[0].Closing)

	feb, err := repo.FindByKey(context.Background(), Key{Year: 2025, Month: time.February})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, feb.Status)
	require.Equal(t, int64(-1000), repo.balances[feb.ID][2].Opening)

	_, err = svc.Close(context.Background(), CloseInput{PeriodID: jan.ID})
	require.ErrorIs(t, err, shared.ErrPeriodAlreadyClosed)
}

func TestCloseRequiresEarlierPeriodsClosed(t *testing.T) {
	svc, repo := newTestService(&stubSnapshotter{})
	_, err := svc.ProvisionYear(context.Background(), 2025)
	require.NoError(t, err)
	mar, err := repo.FindByKey(context.Background(), Key{Year: 2025, Month: time.March})
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), CloseInput{PeriodID: mar.ID})
	require.ErrorIs(t, err, shared.ErrPriorPeriodOpen)
	require.Equal(t, PeriodStatusOpen, repo.periods[mar.ID].Status)
}

func TestCloseFailureLeavesClosingAndResumes(t *testing.T) {
	balances := &stubSnapshotter{err: errors.New("ledger unavailable"), balances: map[int64]int64{1: 50}}
	svc, repo := newTestService(balances)
	jan, err := svc.Provision(context.Background(), 2025, time.January)
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), CloseInput{PeriodID: jan.ID})
	require.Error(t, err)
	require.Equal(t, PeriodStatusClosing, repo.periods[jan.ID].Status)
	require.ErrorIs(t, svc.RequireOpen(context.Background(), jan.ID), shared.ErrPeriodClosed)

	balances.err = nil
	closed, err := svc.Close(context.Background(), CloseInput{PeriodID: jan.ID})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)
	require.Equal(t, int64(50), *repo.balances[jan.ID][1].Closing)
}

func TestCloseFailsFastWhenLockHeld(t *testing.T) {
	locker := locks.NewLocalLocker()
	svc, _ := newTestService(&stubSnapshotter{}, WithLocker(locker))
	jan, err := svc.Provision(context.Background(), 2025, time.January)
	require.NoError(t, err)

	unlock, err := locker.TryLock(context.Background(), locks.FinanceLockKey(jan.ID), time.Minute)
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), CloseInput{PeriodID: jan.ID})
	require.ErrorIs(t, err, shared.ErrCloseInProgress)

	require.NoError(t, unlock(context.Background()))
	_, err = svc.Close(context.Background(), CloseInput{PeriodID: jan.ID})
	require.NoError(t, err)
}

func TestCloseUnknownPeriod(t *testing.T) {
	svc, _ := newTestService(&stubSnapshotter{})
	_, err := svc.Close(context.Background(), CloseInput{PeriodID: 404})
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
	require.Equal(t, shared.ClassNotFound, shared.Classify(err))
}

func TestCloseRejectedWhileAnotherPeriodCloses(t *testing.T) {
	balances := &stubSnapshotter{balances: map[int64]int64{1: 10}}
	svc, repo := newTestService(balances)
	jan, err := svc.Provision(context.Background(), 2025, time.January)
	require.NoError(t, err)
	feb, err := svc.Provision(context.Background(), 2025, time.February)
	require.NoError(t, err)
	repo.setStatus(feb.ID, PeriodStatusClosing)

	_, err = svc.Close(context.Background(), CloseInput{PeriodID: jan.ID})
	require.ErrorIs(t, err, shared.ErrCloseInProgress)
	require.Equal(t, PeriodStatusOpen, repo.periods[jan.ID].Status)
	require.True(t, balances.lastAsOf.IsZero())

	repo.setStatus(feb.ID, PeriodStatusOpen)
	closed, err := svc.Close(context.Background(), CloseInput{PeriodID: jan.ID})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)
}

func TestCloseInvalidatesCache(t *testing.T) {
	inv := &countingInvalidator{}
	svc, _ := newTestService(&stubSnapshotter{}, WithInvalidator(inv))
	jan, err := svc.Provision(context.Background(), 2025, time.January)
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), CloseInput{PeriodID: jan.ID})
	require.NoError(t, err)
	require.Equal(t, 1, inv.calls)
}

func newTestService(balances BalanceSnapshotter, opts ...Option) (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, balances, opts...)
	svc.WithNow(func() time.Time { return time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC) })
	return svc, repo
}

type stubSnapshotter struct {
	balances map[int64]int64
	err      error
	lastAsOf time.Time
}

func (s *stubSnapshotter) BalancesAsOf(_ context.Context, asOf time.Time) (map[int64]int64, error) {
	s.lastAsOf = asOf
	if s.err != nil {
		return nil, s.err
	}
	return s.balances, nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type memoryRepo struct {
	mu       sync.Mutex
	nextID   int64
	periods  map[int64]Period
	balances map[int64]map[int64]BalanceSnapshot
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{periods: map[int64]Period{}, balances: map[int64]map[int64]BalanceSnapshot{}}
}

func (m *memoryRepo) setStatus(id int64, status PeriodStatus) {
	p := m.periods[id]
	p.Status = status
	m.periods[id] = p
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	periods := make(map[int64]Period, len(m.periods))
	for k, v := range m.periods {
		periods[k] = v
	}
	balances := make(map[int64]map[int64]BalanceSnapshot, len(m.balances))
	for k, v := range m.balances {
		inner := make(map[int64]BalanceSnapshot, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		balances[k] = inner
	}
	nextID := m.nextID
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.periods, m.balances, m.nextID = periods, balances, nextID
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (m *memoryRepo) FindByKey(_ context.Context, key Key) (Period, error) {
	for _, p := range m.periods {
		if p.Year == key.Year && p.Month == key.Month {
			return p, nil
		}
	}
	return Period{}, shared.ErrPeriodNotFound
}

func (m *memoryRepo) List(_ context.Context, year int) ([]Period, error) {
	var out []Period
	for _, p := range m.periods {
		if year == 0 || p.Year == year {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return KeyOf(out[i].StartDate).Before(KeyOf(out[j].StartDate)) })
	return out, nil
}

func (m *memoryRepo) Snapshots(_ context.Context, periodID int64) ([]BalanceSnapshot, error) {
	var out []BalanceSnapshot
	for _, s := range m.balances[periodID] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) FindByKey(ctx context.Context, key Key) (Period, error) {
	return t.repo.FindByKey(ctx, key)
}

func (t *memoryTx) Insert(ctx context.Context, key Key) (Period, error) {
	if p, err := t.repo.FindByKey(ctx, key); err == nil {
		return p, nil
	}
	t.repo.nextID++
	start, end := key.Bounds()
	p := Period{ID: t.repo.nextID, Year: key.Year, Month: key.Month, StartDate: start, EndDate: end, Status: PeriodStatusOpen}
	t.repo.periods[p.ID] = p
	return p, nil
}

func (t *memoryTx) MarkClosing(_ context.Context, id int64, at time.Time) error {
	p := t.repo.periods[id]
	if p.Status != PeriodStatusOpen {
		return shared.ErrInvalidStatus
	}
	p.Status = PeriodStatusClosing
	p.CloseStartedAt = &at
	t.repo.periods[id] = p
	return nil
}

func (t *memoryTx) MarkClosed(_ context.Context, id int64, actorID int64, at time.Time) error {
	p := t.repo.periods[id]
	if p.Status != PeriodStatusClosing {
		return shared.ErrInvalidStatus
	}
	p.Status = PeriodStatusClosed
	p.ClosedAt = &at
	if actorID != 0 {
		p.ClosedBy = &actorID
	}
	t.repo.periods[id] = p
	return nil
}

func (t *memoryTx) HasUnclosedBefore(_ context.Context, key Key) (bool, error) {
	for _, p := range t.repo.periods {
		if KeyOf(p.StartDate).Before(key) && p.Status != PeriodStatusClosed {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) HasOtherClosing(_ context.Context, id int64) (bool, error) {
	for _, p := range t.repo.periods {
		if p.ID != id && p.Status == PeriodStatusClosing {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) SaveClosingBalances(_ context.Context, periodID int64, balances map[int64]int64) error {
	set := t.snapshotSet(periodID)
	for accountID, amount := range balances {
		amount := amount
		snap := set[accountID]
		snap.PeriodID, snap.AccountID, snap.Closing = periodID, accountID, &amount
		set[accountID] = snap
	}
	return nil
}

func (t *memoryTx) SaveOpeningBalances(_ context.Context, periodID int64, balances map[int64]int64) error {
	set := t.snapshotSet(periodID)
	for accountID, amount := range balances {
		snap := set[accountID]
		snap.PeriodID, snap.AccountID, snap.Opening = periodID, accountID, amount
		set[accountID] = snap
	}
	return nil
}

func (t *memoryTx) snapshotSet(periodID int64) map[int64]BalanceSnapshot {
	set, ok := t.repo.balances[periodID]
	if !ok {
		set = map[int64]BalanceSnapshot{}
		t.repo.balances[periodID] = set
	}
	return set
}
