package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Entry, error)
	Totals(ctx context.Context, filter TotalsFilter) ([]AccountTotals, error)
	LedgerLines(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerRow, error)
	UnbalancedEntries(ctx context.Context) ([]IntegrityIssue, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	LockPeriod(ctx context.Context, periodID int64) (periods.Period, error)
	LoadAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error)
	NextSequence(ctx context.Context, periodID int64) (int64, error)
	ReferenceExists(ctx context.Context, periodID int64, reference string) (bool, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	GetForUpdate(ctx context.Context, id int64) (Entry, error)
	MarkPosted(ctx context.Context, id, periodID int64, reference string, actorID int64, at time.Time) error
	MarkVoid(ctx context.Context, id, reversalID int64, reason string, at time.Time) error
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx backed journal repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// WithTx runs fn in a read-committed transaction: the FOR SHARE period lock
// then observes the latest period status once a concurrent close commits.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const entryColumns = `id, period_id, entry_date, COALESCE(reference, ''), description, status, COALESCE(source_module, ''), source_id,
reverses_id, voided_by_id, COALESCE(void_reason, ''), COALESCE(posted_by, 0), posted_at, voided_at, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var sourceID *uuid.UUID
	err := row.Scan(&e.ID, &e.PeriodID, &e.Date, &e.Reference, &e.Description, &e.Status, &e.SourceModule, &sourceID,
		&e.ReversesID, &e.VoidedByID, &e.VoidReason, &e.PostedBy, &e.PostedAt, &e.VoidedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrJournalNotFound
		}
		return Entry{}, err
	}
	if sourceID != nil {
		e.SourceID = *sourceID
	}
	return e, nil
}

func loadEntry(ctx context.Context, q querier, sql string, id int64) (Entry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, sql, id))
	if err != nil {
		return Entry{}, err
	}
	rows, err := q.Query(ctx, `SELECT l.id, l.entry_id, l.account_id, l.side, l.amount,
COALESCE(array_agg(t.tag ORDER BY t.tag) FILTER (WHERE t.tag IS NOT NULL), '{}')
FROM journal_lines l LEFT JOIN journal_line_tags t ON t.line_id = l.id
WHERE l.entry_id=$1 GROUP BY l.id ORDER BY l.line_no`, id)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Side, &line.Amount, &line.Tags); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Entry, error) {
	return loadEntry(ctx, r.db, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
}

// postedScope limits aggregation to live POSTED entries; a voided entry and
// its reversal are both excluded so their net effect stays zero.
const postedScope = `e.status = 'POSTED' AND e.reverses_id IS NULL`

func (r *repository) Totals(ctx context.Context, f TotalsFilter) ([]AccountTotals, error) {
	args := []any{f.To}
	lineCond := []string{postedScope, "e.entry_date <= $1"}
	if f.From != nil {
		args = append(args, *f.From)
		lineCond = append(lineCond, fmt.Sprintf("e.entry_date >= $%d", len(args)))
	}
	if f.Tag != "" {
		args = append(args, f.Tag)
		lineCond = append(lineCond, fmt.Sprintf("EXISTS (SELECT 1 FROM journal_line_tags t WHERE t.line_id = l.id AND t.tag = $%d)", len(args)))
	}
	accountCond := []string{"TRUE"}
	if len(f.AccountIDs) > 0 {
		args = append(args, f.AccountIDs)
		accountCond = append(accountCond, fmt.Sprintf("a.id = ANY($%d)", len(args)))
	}
	if len(f.Codes) > 0 {
		args = append(args, f.Codes)
		accountCond = append(accountCond, fmt.Sprintf("a.code = ANY($%d)", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		accountCond = append(accountCond, fmt.Sprintf("a.type = $%d", len(args)))
	}
	sql := `SELECT a.id, a.code, a.name, a.type, a.normal_side, a.is_active, a.created_at, a.updated_at,
COALESCE(SUM(m.amount) FILTER (WHERE m.side = 'DEBIT'), 0)::bigint,
COALESCE(SUM(m.amount) FILTER (WHERE m.side = 'CREDIT'), 0)::bigint
FROM accounts a
LEFT JOIN (
	SELECT l.account_id, l.side, l.amount
	FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
	WHERE ` + strings.Join(lineCond, " AND ") + `
) m ON m.account_id = a.id
WHERE ` + strings.Join(accountCond, " AND ") + `
GROUP BY a.id ORDER BY a.code`
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		a := &t.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalSide, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) LedgerLines(ctx context.Context, accountID int64, from, to time.Time) ([]LedgerRow, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id, COALESCE(e.reference, ''), e.entry_date, e.description,
CASE WHEN l.side = 'DEBIT' THEN l.amount ELSE 0 END,
CASE WHEN l.side = 'CREDIT' THEN l.amount ELSE 0 END
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = $1 AND `+postedScope+` AND e.entry_date BETWEEN $2 AND $3
ORDER BY e.entry_date, e.id, l.line_no`, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerRow
	for rows.Next() {
		var row LedgerRow
		if err := rows.Scan(&row.EntryID, &row.Reference, &row.Date, &row.Description, &row.Debit, &row.Credit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repository) UnbalancedEntries(ctx context.Context) ([]IntegrityIssue, error) {
	rows, err := r.db.Query(ctx, `SELECT e.id, COALESCE(e.reference, ''),
COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'DEBIT'), 0)::bigint AS debit,
COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'CREDIT'), 0)::bigint AS credit,
COUNT(l.id)
FROM journal_entries e LEFT JOIN journal_lines l ON l.entry_id = e.id
WHERE e.status IN ('POSTED', 'VOID')
GROUP BY e.id
HAVING COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'DEBIT'), 0) <> COALESCE(SUM(l.amount) FILTER (WHERE l.side = 'CREDIT'), 0)
	OR COUNT(l.id) < 2
ORDER BY e.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IntegrityIssue
	for rows.Next() {
		var issue IntegrityIssue
		if err := rows.Scan(&issue.EntryID, &issue.Reference, &issue.Debit, &issue.Credit, &issue.LineCount); err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// LockPeriod takes a shared lock on the period row; closing requires the exclusive lock.
func (r *txRepository) LockPeriod(ctx context.Context, periodID int64) (periods.Period, error) {
	var p periods.Period
	var month int
	err := r.tx.QueryRow(ctx, `SELECT id, year, month, start_date, end_date, status FROM fiscal_periods WHERE id=$1 FOR SHARE`, periodID).
		Scan(&p.ID, &p.Year, &month, &p.StartDate, &p.EndDate, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrPeriodNotFound
		}
		return periods.Period{}, err
	}
	p.Month = time.Month(month)
	return p, nil
}

func (r *txRepository) LoadAccounts(ctx context.Context, ids []int64) (map[int64]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, name, type, normal_side, is_active, created_at, updated_at
FROM accounts WHERE id = ANY($1) FOR SHARE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]accounts.Account, len(ids))
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.NormalSide, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// NextSequence increments the period counter; the row lock serialises concurrent posts.
func (r *txRepository) NextSequence(ctx context.Context, periodID int64) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO period_sequences (period_id, last_value) VALUES ($1, 1)
ON CONFLICT (period_id) DO UPDATE SET last_value = period_sequences.last_value + 1
RETURNING last_value`, periodID).Scan(&seq)
	return seq, err
}

func (r *txRepository) ReferenceExists(ctx context.Context, periodID int64, reference string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE period_id=$1 AND reference=$2)`, periodID, reference).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(period_id, entry_date, reference, description, status, source_module, source_id, reverses_id, posted_by, posted_at)
VALUES ($1,$2,NULLIF($3,''),$4,$5,NULLIF($6,''),$7,$8,$9,$10)
RETURNING id, created_at, updated_at`,
		e.PeriodID, e.Date, e.Reference, e.Description, e.Status, e.SourceModule, nullUUID(e.SourceID), e.ReversesID, nullInt(e.PostedBy), e.PostedAt)
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_entries_reference" {
			return Entry{}, shared.ErrDuplicateReference
		}
		return Entry{}, err
	}
	for idx := range e.Lines {
		line := &e.Lines[idx]
		line.EntryID = e.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, line_no, account_id, side, amount)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, e.ID, idx+1, line.AccountID, line.Side, line.Amount).Scan(&line.ID); err != nil {
			return Entry{}, err
		}
		for _, tag := range line.Tags {
			if _, err := r.tx.Exec(ctx, `INSERT INTO journal_line_tags (line_id, tag) VALUES ($1,$2) ON CONFLICT DO NOTHING`, line.ID, tag); err != nil {
				return Entry{}, err
			}
		}
	}
	return e, nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_source_links" {
			return shared.ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Entry, error) {
	return loadEntry(ctx, r.tx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) MarkPosted(ctx context.Context, id, periodID int64, reference string, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', period_id=$2, reference=$3, posted_by=$4, posted_at=$5, updated_at=NOW()
WHERE id=$1 AND status='DRAFT'`, id, periodID, reference, nullInt(actorID), at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_entries_reference" {
			return shared.ErrDuplicateReference
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvalidStatus
	}
	return nil
}

func (r *txRepository) MarkVoid(ctx context.Context, id, reversalID int64, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='VOID', voided_by_id=$2, void_reason=$3, voided_at=$4, updated_at=NOW()
WHERE id=$1 AND status='POSTED'`, id, reversalID, reason, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvalidStatus
	}
	return nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
