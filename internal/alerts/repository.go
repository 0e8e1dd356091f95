package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates alert persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, typ AlertType) (Rule, error)
	ActiveEvents(ctx context.Context) ([]Event, error)
	History(ctx context.Context, filter HistoryFilter) ([]Event, int, error)
	ActiveProjects(ctx context.Context) ([]Project, error)
}

// TxRepository exposes alert writes available within a transaction.
type TxRepository interface {
	LockRule(ctx context.Context, typ AlertType) (Rule, error)
	InsertRuleIfMissing(ctx context.Context, rule Rule) (bool, error)
	UpdateRule(ctx context.Context, rule Rule) (Rule, error)
	HasOpenEvent(ctx context.Context, ruleID int64) (bool, error)
	InsertEvent(ctx context.Context, event Event) (Event, error)
	TouchRule(ctx context.Context, ruleID int64, at time.Time) error
	GetEventForUpdate(ctx context.Context, id int64) (Event, error)
	AcknowledgeEvent(ctx context.Context, id, actorID int64, at time.Time) error
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed alert repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const ruleColumns = `id, alert_type, threshold, enabled, critical_ratio, last_triggered_at, updated_at`

func scanRule(row pgx.Row) (Rule, error) {
	var rule Rule
	if err := row.Scan(&rule.ID, &rule.Type, &rule.Threshold, &rule.Enabled, &rule.CriticalRatio, &rule.LastTriggeredAt, &rule.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrRuleNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

func (r *repository) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM alert_rules ORDER BY alert_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *repository) GetRule(ctx context.Context, typ AlertType) (Rule, error) {
	return scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE alert_type=$1`, typ))
}

const eventColumns = `ev.id, ev.rule_id, r.alert_type, ev.severity, ev.message, COALESCE(ev.details, ''), ev.metric, ev.threshold,
ev.created_at, ev.acknowledged_at, ev.acknowledged_by`

func scanEvent(row pgx.Row) (Event, error) {
	var ev Event
	if err := row.Scan(&ev.ID, &ev.RuleID, &ev.Type, &ev.Severity, &ev.Message, &ev.Details, &ev.Metric, &ev.Threshold,
		&ev.CreatedAt, &ev.AcknowledgedAt, &ev.AcknowledgedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, err
	}
	return ev, nil
}

func collectEvents(ctx context.Context, q querier, sql string, args ...any) ([]Event, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *repository) ActiveEvents(ctx context.Context) ([]Event, error) {
	return collectEvents(ctx, r.pool, `SELECT `+eventColumns+`
FROM alert_events ev JOIN alert_rules r ON r.id = ev.rule_id
WHERE ev.acknowledged_at IS NULL
ORDER BY ev.created_at DESC, ev.id DESC`)
}

func (r *repository) History(ctx context.Context, f HistoryFilter) ([]Event, int, error) {
	conds := []string{"TRUE"}
	var args []any
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("r.alert_type = $%d", len(args)))
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		conds = append(conds, fmt.Sprintf("ev.severity = $%d", len(args)))
	}
	if f.Acknowledged != nil {
		if *f.Acknowledged {
			conds = append(conds, "ev.acknowledged_at IS NOT NULL")
		} else {
			conds = append(conds, "ev.acknowledged_at IS NULL")
		}
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alert_events ev JOIN alert_rules r ON r.id = ev.rule_id WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	events, err := collectEvents(ctx, r.pool, fmt.Sprintf(`SELECT `+eventColumns+`
FROM alert_events ev JOIN alert_rules r ON r.id = ev.rule_id
WHERE %s ORDER BY ev.created_at DESC, ev.id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *repository) ActiveProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, budget FROM projects WHERE status = 'ACTIVE' ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Budget); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LockRule(ctx context.Context, typ AlertType) (Rule, error) {
	return scanRule(t.tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE alert_type=$1 FOR UPDATE`, typ))
}

func (t *txRepository) InsertRuleIfMissing(ctx context.Context, rule Rule) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO alert_rules (alert_type, threshold, enabled, critical_ratio, updated_at)
VALUES ($1, $2, $3, $4, NOW()) ON CONFLICT (alert_type) DO NOTHING`, rule.Type, rule.Threshold, rule.Enabled, rule.CriticalRatio)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) UpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	return scanRule(t.tx.QueryRow(ctx, `UPDATE alert_rules SET threshold=$2, enabled=$3, critical_ratio=$4, updated_at=NOW()
WHERE alert_type=$1 RETURNING `+ruleColumns, rule.Type, rule.Threshold, rule.Enabled, rule.CriticalRatio))
}

func (t *txRepository) HasOpenEvent(ctx context.Context, ruleID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alert_events WHERE rule_id=$1 AND acknowledged_at IS NULL)`, ruleID).Scan(&exists)
	return exists, err
}

func (t *txRepository) InsertEvent(ctx context.Context, ev Event) (Event, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO alert_events (rule_id, severity, message, details, metric, threshold, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7) RETURNING id`,
		ev.RuleID, ev.Severity, ev.Message, ev.Details, ev.Metric, ev.Threshold, ev.CreatedAt).Scan(&ev.ID)
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (t *txRepository) TouchRule(ctx context.Context, ruleID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE alert_rules SET last_triggered_at=$2 WHERE id=$1`, ruleID, at)
	return err
}

func (t *txRepository) GetEventForUpdate(ctx context.Context, id int64) (Event, error) {
	return scanEvent(t.tx.QueryRow(ctx, `SELECT `+eventColumns+`
FROM alert_events ev JOIN alert_rules r ON r.id = ev.rule_id
WHERE ev.id=$1 FOR UPDATE OF ev`, id))
}

func (t *txRepository) AcknowledgeEvent(ctx context.Context, id, actorID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE alert_events SET acknowledged_at=$2, acknowledged_by=NULLIF($3::bigint, 0)
WHERE id=$1 AND acknowledged_at IS NULL`, id, at, actorID)
	return err
}
