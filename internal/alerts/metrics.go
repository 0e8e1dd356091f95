package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/analytics"
)

// LedgerSource exposes the ledger aggregates used by metrics.
type LedgerSource interface {
	BalanceForCodes(ctx context.Context, codes []string, asOf time.Time) (int64, error)
	MovementByType(ctx context.Context, typ accounts.AccountType, tag string, from, to time.Time) (int64, error)
}

// AgingSource exposes receivable data used by metrics.
type AgingSource interface {
	ComputeAging(ctx context.Context, q analytics.AgingQuery) (analytics.AgingReport, error)
	PaidInvoices(ctx context.Context, from, to time.Time) ([]analytics.Document, error)
	RevenueByClient(ctx context.Context, from, to time.Time) ([]analytics.ClientRevenue, error)
}

// ProjectSource lists active projects with their budgets.
type ProjectSource interface {
	ActiveProjects(ctx context.Context) ([]Project, error)
}

// Sources bundles the read models rules are evaluated against.
type Sources struct {
	Ledger           LedgerSource
	Aging            AgingSource
	Projects         ProjectSource
	CashAccountCodes []string
}

// Measurement is a computed metric value with context for the event message.
type Measurement struct {
	Value   decimal.Decimal
	Subject string
	Details string
}

type direction int

const (
	// below triggers when the metric drops under the threshold.
	below direction = iota
	// above triggers when the metric exceeds the threshold.
	above
)

type metricSpec struct {
	direction direction
	compute   func(ctx context.Context, src Sources, now time.Time) (Measurement, error)
	message   func(m Measurement, threshold decimal.Decimal) string
}

var (
	hundred     = decimal.NewFromInt(100)
	projectFrom = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
)

var specs = map[AlertType]metricSpec{
	TypeCashLow: {
		direction: below,
		compute:   cashBalance,
		message: func(m Measurement, t decimal.Decimal) string {
			return fmt.Sprintf("Cash balance %s is below threshold %s", m.Value.String(), t.String())
		},
	},
	TypeReceivableOverdue: {
		direction: above,
		compute:   receivableOverdue,
		message: func(m Measurement, t decimal.Decimal) string {
			return fmt.Sprintf("Receivables overdue more than 30 days total %s (threshold %s)", m.Value.String(), t.String())
		},
	},
	TypeExpenseSpike: {
		direction: above,
		compute:   expenseSpike,
		message: func(m Measurement, t decimal.Decimal) string {
			return fmt.Sprintf("Expenses this month are %s%% above the 3-month average (threshold %s%%)", m.Value.StringFixed(1), t.String())
		},
	},
	TypeProjectOverBudget: {
		direction: above,
		compute:   projectBudgetUse,
		message: func(m Measurement, t decimal.Decimal) string {
			return fmt.Sprintf("Project %s has spent %s%% of its budget (threshold %s%%)", m.Subject, m.Value.StringFixed(1), t.String())
		},
	},
	TypeProjectMarginDrop: {
		direction: below,
		compute:   projectMargin,
		message: func(m Measurement, t decimal.Decimal) string {
			return fmt.Sprintf("Project %s margin is %s%% (threshold %s%%)", m.Subject, m.Value.StringFixed(1), t.String())
		},
	},
	TypeCollectionSlowdown: {
		direction: above,
		compute:   collectionDays,
		message: func(m Measurement, t decimal.Decimal) string {
			return fmt.Sprintf("Average collection time is %s days (threshold %s days)", m.Value.StringFixed(0), t.String())
		},
	},
	TypeClientConcentration: {
		direction: above,
		compute:   clientConcentration,
		message: func(m Measurement, t decimal.Decimal) string {
			return fmt.Sprintf("Client %s accounts for %s%% of revenue (threshold %s%%)", m.Subject, m.Value.StringFixed(1), t.String())
		},
	},
}

// crossed reports whether value is past threshold in the adverse direction.
func (s metricSpec) crossed(value, threshold decimal.Decimal) bool {
	if s.direction == below {
		return value.LessThan(threshold)
	}
	return value.GreaterThan(threshold)
}

// SeverityFor grades how far metric is past threshold. A relative distance of
// at least ratio is CRITICAL; a zero threshold is always CRITICAL.
func SeverityFor(typ AlertType, metric, threshold, ratio decimal.Decimal) Severity {
	if typ == TypeCashLow && !metric.IsPositive() {
		return SeverityCritical
	}
	if threshold.IsZero() {
		return SeverityCritical
	}
	distance := metric.Sub(threshold).Abs().Div(threshold.Abs())
	if distance.GreaterThanOrEqual(ratio) {
		return SeverityCritical
	}
	return SeverityWarning
}

func cashBalance(ctx context.Context, src Sources, now time.Time) (Measurement, error) {
	if len(src.CashAccountCodes) == 0 {
		return Measurement{}, fmt.Errorf("%w: no cash account codes configured", ErrMetricUnavailable)
	}
	balance, err := src.Ledger.BalanceForCodes(ctx, src.CashAccountCodes, now)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{
		Value:   decimal.NewFromInt(balance),
		Details: "accounts " + strings.Join(src.CashAccountCodes, ", "),
	}, nil
}

func receivableOverdue(ctx context.Context, src Sources, now time.Time) (Measurement, error) {
	report, err := src.Aging.ComputeAging(ctx, analytics.AgingQuery{AsOf: now, Side: analytics.SideReceivable})
	if err != nil {
		return Measurement{}, err
	}
	var count int
	for _, b := range report.Buckets {
		if b.Bucket != analytics.BucketCurrent && b.Bucket != analytics.Bucket1To30 {
			count += b.Count
		}
	}
	return Measurement{
		Value:   decimal.NewFromInt(report.AmountFrom(analytics.Bucket31To60)),
		Details: fmt.Sprintf("%d invoices overdue more than 30 days", count),
	}, nil
}

func expenseSpike(ctx context.Context, src Sources, now time.Time) (Measurement, error) {
	today := shared.DateOnly(now)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	current, err := src.Ledger.MovementByType(ctx, accounts.AccountTypeExpense, "", monthStart, today)
	if err != nil {
		return Measurement{}, err
	}
	var total int64
	for i := 1; i <= 3; i++ {
		start := monthStart.AddDate(0, -i, 0)
		end := start.AddDate(0, 1, -1)
		amount, err := src.Ledger.MovementByType(ctx, accounts.AccountTypeExpense, "", start, end)
		if err != nil {
			return Measurement{}, err
		}
		total += amount
	}
	avg := decimal.NewFromInt(total).Div(decimal.NewFromInt(3)).Round(2)
	if avg.IsZero() {
		return Measurement{}, fmt.Errorf("%w: no expenses in the previous 3 months", ErrMetricUnavailable)
	}
	increase := decimal.NewFromInt(current).Sub(avg).Mul(hundred).Div(avg).Round(2)
	return Measurement{
		Value:   increase,
		Details: fmt.Sprintf("current %d vs average %s", current, avg.String()),
	}, nil
}

type projectFigures struct {
	project Project
	revenue int64
	cost    int64
}

func loadProjectFigures(ctx context.Context, src Sources, now time.Time) ([]projectFigures, error) {
	projects, err := src.Projects.ActiveProjects(ctx)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("%w: no active projects", ErrMetricUnavailable)
	}
	out := make([]projectFigures, 0, len(projects))
	for _, p := range projects {
		cost, err := src.Ledger.MovementByType(ctx, accounts.AccountTypeExpense, p.Tag(), projectFrom, now)
		if err != nil {
			return nil, err
		}
		revenue, err := src.Ledger.MovementByType(ctx, accounts.AccountTypeRevenue, p.Tag(), projectFrom, now)
		if err != nil {
			return nil, err
		}
		out = append(out, projectFigures{project: p, revenue: revenue, cost: cost})
	}
	return out, nil
}

func projectBudgetUse(ctx context.Context, src Sources, now time.Time) (Measurement, error) {
	figures, err := loadProjectFigures(ctx, src, now)
	if err != nil {
		return Measurement{}, err
	}
	var best *Measurement
	for _, f := range figures {
		if f.project.Budget <= 0 {
			continue
		}
		pct := decimal.NewFromInt(f.cost).Mul(hundred).Div(decimal.NewFromInt(f.project.Budget)).Round(2)
		if best == nil || pct.GreaterThan(best.Value) {
			best = &Measurement{
				Value:   pct,
				Subject: f.project.Name,
				Details: fmt.Sprintf("cost %d of budget %d", f.cost, f.project.Budget),
			}
		}
	}
	if best == nil {
		return Measurement{}, fmt.Errorf("%w: no project has a budget", ErrMetricUnavailable)
	}
	return *best, nil
}

func projectMargin(ctx context.Context, src Sources, now time.Time) (Measurement, error) {
	figures, err := loadProjectFigures(ctx, src, now)
	if err != nil {
		return Measurement{}, err
	}
	var worst *Measurement
	for _, f := range figures {
		if f.revenue <= 0 {
			continue
		}
		margin := decimal.NewFromInt(f.revenue - f.cost).Mul(hundred).Div(decimal.NewFromInt(f.revenue)).Round(2)
		if worst == nil || margin.LessThan(worst.Value) {
			worst = &Measurement{
				Value:   margin,
				Subject: f.project.Name,
				Details: fmt.Sprintf("revenue %d, cost %d", f.revenue, f.cost),
			}
		}
	}
	if worst == nil {
		return Measurement{}, fmt.Errorf("%w: no project has revenue", ErrMetricUnavailable)
	}
	return *worst, nil
}

func collectionDays(ctx context.Context, src Sources, now time.Time) (Measurement, error) {
	today := shared.DateOnly(now)
	invoices, err := src.Aging.PaidInvoices(ctx, today.AddDate(0, -6, 0), today)
	if err != nil {
		return Measurement{}, err
	}
	var days, n int64
	for _, inv := range invoices {
		if inv.PaidAt == nil {
			continue
		}
		days += int64(shared.DaysBetween(inv.IssueDate, *inv.PaidAt))
		n++
	}
	if n == 0 {
		return Measurement{}, fmt.Errorf("%w: no invoices paid in the last 6 months", ErrMetricUnavailable)
	}
	return Measurement{
		Value:   decimal.NewFromInt(days).Div(decimal.NewFromInt(n)).Round(2),
		Details: fmt.Sprintf("%d invoices paid in the last 6 months", n),
	}, nil
}

func clientConcentration(ctx context.Context, src Sources, now time.Time) (Measurement, error) {
	today := shared.DateOnly(now)
	clients, err := src.Aging.RevenueByClient(ctx, today.AddDate(0, -12, 0), today)
	if err != nil {
		return Measurement{}, err
	}
	var total int64
	var top analytics.ClientRevenue
	for _, c := range clients {
		total += c.Amount
		if c.Amount > top.Amount {
			top = c
		}
	}
	if total <= 0 {
		return Measurement{}, fmt.Errorf("%w: no invoiced revenue in the last 12 months", ErrMetricUnavailable)
	}
	return Measurement{
		Value:   decimal.NewFromInt(top.Amount).Mul(hundred).Div(decimal.NewFromInt(total)).Round(2),
		Subject: top.Name,
		Details: fmt.Sprintf("%d of %d invoiced", top.Amount, total),
	}, nil
}
