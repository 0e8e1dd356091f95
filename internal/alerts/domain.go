package alerts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEventNotFound indicates an unknown alert event id.
	ErrEventNotFound = errors.New("alerts: event not found")
	// ErrRuleNotFound indicates no rule is stored for an alert type.
	ErrRuleNotFound = errors.New("alerts: rule not found")
	// ErrUnknownType indicates an alert type outside the fixed set.
	ErrUnknownType = errors.New("alerts: unknown alert type")
	// ErrInvalidRule indicates an invalid threshold or critical ratio.
	ErrInvalidRule = errors.New("alerts: invalid rule")
	// ErrMetricUnavailable indicates a metric could not be computed from current data.
	ErrMetricUnavailable = errors.New("alerts: metric unavailable")
)

// AlertType enumerates the fixed rule set.
type AlertType string

const (
	TypeCashLow             AlertType = "CASH_LOW"
	TypeReceivableOverdue   AlertType = "RECEIVABLE_OVERDUE"
	TypeExpenseSpike        AlertType = "EXPENSE_SPIKE"
	TypeProjectOverBudget   AlertType = "PROJECT_OVER_BUDGET"
	TypeProjectMarginDrop   AlertType = "PROJECT_MARGIN_DROP"
	TypeCollectionSlowdown  AlertType = "COLLECTION_SLOWDOWN"
	TypeClientConcentration AlertType = "CLIENT_CONCENTRATION"
)

// Types lists every alert type in display order.
var Types = []AlertType{
	TypeCashLow,
	TypeReceivableOverdue,
	TypeExpenseSpike,
	TypeProjectOverBudget,
	TypeProjectMarginDrop,
	TypeCollectionSlowdown,
	TypeClientConcentration,
}

// ParseType normalises raw into a known AlertType.
func ParseType(raw string) (AlertType, error) {
	t := AlertType(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := specs[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
	return t, nil
}

// Severity grades an alert event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// DefaultCriticalRatio is the relative distance past the threshold at which
// an event becomes CRITICAL.
var DefaultCriticalRatio = decimal.NewFromFloat(0.5)

// Rule is the configured threshold of one alert type.
type Rule struct {
	ID              int64           `json:"id"`
	Type            AlertType       `json:"type"`
	Threshold       decimal.Decimal `json:"threshold"`
	Enabled         bool            `json:"enabled"`
	CriticalRatio   decimal.Decimal `json:"critical_ratio"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate checks the rule is well formed.
func (r Rule) Validate() error {
	if _, ok := specs[r.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	if !r.CriticalRatio.IsPositive() {
		return fmt.Errorf("%w: critical ratio must be positive", ErrInvalidRule)
	}
	if r.Type == TypeCashLow {
		return nil
	}
	if r.Threshold.IsNegative() {
		return fmt.Errorf("%w: threshold must not be negative", ErrInvalidRule)
	}
	return nil
}

// Event is one triggered alert.
type Event struct {
	ID             int64           `json:"id"`
	RuleID         int64           `json:"rule_id"`
	Type           AlertType       `json:"type"`
	Severity       Severity        `json:"severity"`
	Message        string          `json:"message"`
	Details        string          `json:"details,omitempty"`
	Metric         decimal.Decimal `json:"metric"`
	Threshold      decimal.Decimal `json:"threshold"`
	CreatedAt      time.Time       `json:"created_at"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *int64          `json:"acknowledged_by,omitempty"`
}

// Acknowledged reports whether an operator has acknowledged the event.
func (e Event) Acknowledged() bool {
	return e.AcknowledgedAt != nil
}

// Project carries the budget data used by project rules.
type Project struct {
	ID     int64
	Code   string
	Name   string
	Budget int64
}

// Tag is the journal line tag attributing movements to the project.
func (p Project) Tag() string {
	return "project:" + p.Code
}

// UpdateRuleInput changes the configuration of one rule.
type UpdateRuleInput struct {
	Type          AlertType
	Threshold     decimal.Decimal
	Enabled       bool
	CriticalRatio *decimal.Decimal
}

// HistoryFilter narrows the event history.
type HistoryFilter struct {
	Type         AlertType
	Severity     Severity
	Acknowledged *bool
	Limit        int
	Offset       int
}

// RuleFailure records a rule whose metric could not be evaluated.
type RuleFailure struct {
	Type  AlertType `json:"type"`
	Error string    `json:"error"`
}

// EvaluationResult summarises one evaluation sweep.
type EvaluationResult struct {
	Evaluated  int           `json:"evaluated"`
	Created    []Event       `json:"created"`
	Suppressed []AlertType   `json:"suppressed"`
	Failed     []RuleFailure `json:"failed"`
}
