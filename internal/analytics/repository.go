package analytics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed invoice/bill repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const documentColumns = `id, number, counterparty_id, counterparty_name, issue_date, due_date, total, paid, status, paid_at`

func tableFor(side Side) string {
	if side == SidePayable {
		return "bills"
	}
	return "invoices"
}

func scanDocuments(rows pgx.Rows, side Side) ([]Document, error) {
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d := Document{Side: side}
		if err := rows.Scan(&d.ID, &d.Number, &d.CounterpartyID, &d.CounterpartyName, &d.IssueDate, &d.DueDate, &d.Total, &d.Paid, &d.Status, &d.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *pgRepository) OutstandingDocuments(ctx context.Context, side Side, asOf time.Time) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM `+tableFor(side)+`
WHERE status <> 'PAID' AND total > paid AND issue_date <= $1
ORDER BY due_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows, side)
}

func (r *pgRepository) PaidInvoices(ctx context.Context, from, to time.Time) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM invoices
WHERE status = 'PAID' AND paid_at IS NOT NULL AND paid_at::date BETWEEN $1 AND $2
ORDER BY paid_at, id`, from, to)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows, SideReceivable)
}

func (r *pgRepository) RevenueByClient(ctx context.Context, from, to time.Time) ([]ClientRevenue, error) {
	rows, err := r.pool.Query(ctx, `SELECT counterparty_id, MAX(counterparty_name), SUM(total)::bigint
FROM invoices WHERE issue_date BETWEEN $1 AND $2
GROUP BY counterparty_id ORDER BY SUM(total) DESC, counterparty_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClientRevenue
	for rows.Next() {
		var c ClientRevenue
		if err := rows.Scan(&c.CounterpartyID, &c.Name, &c.Amount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
