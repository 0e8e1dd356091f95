package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen    PeriodStatus = "OPEN"
	PeriodStatusClosing PeriodStatus = "CLOSING"
	PeriodStatusClosed  PeriodStatus = "CLOSED"
)

// Period represents a monthly fiscal period window.
type Period struct {
	ID             int64
	Year           int
	Month          time.Month
	StartDate      time.Time
	EndDate        time.Time
	Status         PeriodStatus
	CloseStartedAt *time.Time
	ClosedAt       *time.Time
	ClosedBy       *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Code renders the period as YYYY-MM.
func (p Period) Code() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Contains reports whether date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	d := shared.DateOnly(date)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// RequireOpen fails with ErrPeriodClosed unless the period accepts postings.
// CLOSING blocks writes exactly like CLOSED.
func (p Period) RequireOpen() error {
	if p.Status != PeriodStatusOpen {
		return fmt.Errorf("%w: %s is %s", shared.ErrPeriodClosed, p.Code(), p.Status)
	}
	return nil
}

// Key identifies a period by calendar month.
type Key struct {
	Year  int
	Month time.Month
}

// KeyOf maps a date onto its owning period key.
func KeyOf(date time.Time) Key {
	return Key{Year: date.Year(), Month: date.Month()}
}

// Next returns the chronologically following month.
func (k Key) Next() Key {
	if k.Month == time.December {
		return Key{Year: k.Year + 1, Month: time.January}
	}
	return Key{Year: k.Year, Month: k.Month + 1}
}

// Before orders keys chronologically.
func (k Key) Before(other Key) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Validate checks the month range.
func (k Key) Validate() error {
	if k.Month < time.January || k.Month > time.December {
		return fmt.Errorf("%w: month must be 1-12", shared.ErrInvalidInput)
	}
	if k.Year < 1900 || k.Year > 9999 {
		return fmt.Errorf("%w: year out of range", shared.ErrInvalidInput)
	}
	return nil
}

// Bounds returns the first and last day covered by the key.
func (k Key) Bounds() (time.Time, time.Time) {
	return shared.MonthBounds(k.Year, k.Month)
}

// BalanceSnapshot captures frozen per-account balances for a period.
type BalanceSnapshot struct {
	PeriodID  int64
	AccountID int64
	Opening   int64
	Closing   *int64
}

// CloseInput wraps parameters for closing.
type CloseInput struct {
	PeriodID int64
	ActorID  int64
}
