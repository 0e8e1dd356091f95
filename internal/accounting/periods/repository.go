package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository reads periods and opens transactions over them.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Period, error)
	FindByKey(ctx context.Context, key Key) (Period, error)
	List(ctx context.Context, year int) ([]Period, error)
	Snapshots(ctx context.Context, periodID int64) ([]BalanceSnapshot, error)
}

// TxRepository exposes transactional period operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Period, error)
	FindByKey(ctx context.Context, key Key) (Period, error)
	Insert(ctx context.Context, key Key) (Period, error)
	MarkClosing(ctx context.Context, id int64, at time.Time) error
	MarkClosed(ctx context.Context, id int64, actorID int64, at time.Time) error
	HasUnclosedBefore(ctx context.Context, key Key) (bool, error)
	HasOtherClosing(ctx context.Context, id int64) (bool, error)
	SaveClosingBalances(ctx context.Context, periodID int64, balances map[int64]int64) error
	SaveOpeningBalances(ctx context.Context, periodID int64, balances map[int64]int64) error
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed period repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// WithTx executes fn within repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("periods: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.RepeatableRead, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const periodColumns = `id, year, month, start_date, end_date, status, close_started_at, closed_at, closed_by, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var month int
	err := row.Scan(&p.ID, &p.Year, &month, &p.StartDate, &p.EndDate, &p.Status, &p.CloseStartedAt, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Period{}, err
	}
	p.Month = time.Month(month)
	return p, nil
}

func getPeriod(ctx context.Context, q querier, sql string, args ...any) (Period, error) {
	p, err := scanPeriod(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, err
}

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	return getPeriod(ctx, r.pool, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, id)
}

func (r *repository) FindByKey(ctx context.Context, key Key) (Period, error) {
	return getPeriod(ctx, r.pool, `SELECT `+periodColumns+` FROM fiscal_periods WHERE year=$1 AND month=$2`, key.Year, int(key.Month))
}

func (r *repository) List(ctx context.Context, year int) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE ($1 = 0 OR year = $1) ORDER BY year, month`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Snapshots(ctx context.Context, periodID int64) ([]BalanceSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT period_id, account_id, opening, closing FROM period_balances WHERE period_id=$1 ORDER BY account_id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceSnapshot
	for rows.Next() {
		var s BalanceSnapshot
		if err := rows.Scan(&s.PeriodID, &s.AccountID, &s.Opening, &s.Closing); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Period, error) {
	return getPeriod(ctx, r.tx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) FindByKey(ctx context.Context, key Key) (Period, error) {
	return getPeriod(ctx, r.tx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE year=$1 AND month=$2`, key.Year, int(key.Month))
}

// Insert provisions an OPEN period, returning the existing row when already present.
func (r *txRepository) Insert(ctx context.Context, key Key) (Period, error) {
	start, end := key.Bounds()
	p, err := getPeriod(ctx, r.tx, `INSERT INTO fiscal_periods (year, month, start_date, end_date, status)
VALUES ($1,$2,$3,$4,'OPEN') ON CONFLICT (year, month) DO NOTHING RETURNING `+periodColumns, key.Year, int(key.Month), start, end)
	if errors.Is(err, shared.ErrPeriodNotFound) {
		return r.FindByKey(ctx, key)
	}
	return p, err
}

func (r *txRepository) MarkClosing(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, `UPDATE fiscal_periods SET status='CLOSING', close_started_at=$2, updated_at=NOW() WHERE id=$1 AND status='OPEN'`, id, at)
}

func (r *txRepository) MarkClosed(ctx context.Context, id int64, actorID int64, at time.Time) error {
	var actor *int64
	if actorID != 0 {
		actor = &actorID
	}
	return r.exec(ctx, `UPDATE fiscal_periods SET status='CLOSED', closed_at=$2, closed_by=$3, updated_at=NOW() WHERE id=$1 AND status='CLOSING'`, id, at, actor)
}

func (r *txRepository) exec(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: period row not in expected state", shared.ErrInvalidStatus)
	}
	return nil
}

func (r *txRepository) HasUnclosedBefore(ctx context.Context, key Key) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_periods
WHERE (year, month) < ($1, $2) AND status <> 'CLOSED')`, key.Year, int(key.Month)).Scan(&exists)
	return exists, err
}

func (r *txRepository) HasOtherClosing(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_periods WHERE status='CLOSING' AND id <> $1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) SaveClosingBalances(ctx context.Context, periodID int64, balances map[int64]int64) error {
	batch := &pgx.Batch{}
	for accountID, amount := range balances {
		batch.Queue(`INSERT INTO period_balances (period_id, account_id, opening, closing) VALUES ($1,$2,0,$3)
ON CONFLICT (period_id, account_id) DO UPDATE SET closing = EXCLUDED.closing`, periodID, accountID, amount)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) SaveOpeningBalances(ctx context.Context, periodID int64, balances map[int64]int64) error {
	batch := &pgx.Batch{}
	for accountID, amount := range balances {
		batch.Queue(`INSERT INTO period_balances (period_id, account_id, opening) VALUES ($1,$2,$3)
ON CONFLICT (period_id, account_id) DO UPDATE SET opening = EXCLUDED.opening`, periodID, accountID, amount)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}
