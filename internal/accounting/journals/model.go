package journals

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoid   EntryStatus = "VOID"
)

// Entry captures posting metadata and its ordered lines.
type Entry struct {
	ID           int64
	PeriodID     *int64
	Date         time.Time
	Reference    string
	Description  string
	Status       EntryStatus
	SourceModule string
	SourceID     uuid.UUID
	ReversesID   *int64
	VoidedByID   *int64
	VoidReason   string
	PostedBy     int64
	PostedAt     *time.Time
	VoidedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []Line
}

// IsReversal reports whether the entry was generated by a void.
func (e Entry) IsReversal() bool {
	return e.ReversesID != nil
}

// Totals sums debit and credit line amounts.
func (e Entry) Totals() (debit, credit int64) {
	for _, l := range e.Lines {
		if l.Side == accounts.SideDebit {
			debit += l.Amount
		} else {
			credit += l.Amount
		}
	}
	return debit, credit
}

// Line stores one debit or credit amount in minor units.
type Line struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Side      accounts.Side
	Amount    int64
	Tags      []string
}

// FormatReference renders the sequential reference of a period, e.g. JE-202503-00042.
func FormatReference(year int, month time.Month, seq int64) string {
	return fmt.Sprintf("JE-%04d%02d-%05d", year, int(month), seq)
}

// AccountTotals aggregates POSTED line amounts of one account.
type AccountTotals struct {
	Account accounts.Account
	Debit   int64
	Credit  int64
}

// Balance orients the totals by the account's normal side.
func (t AccountTotals) Balance() int64 {
	return t.Account.Orient(t.Debit, t.Credit)
}

// TotalsFilter narrows an aggregation over posted lines.
// From is inclusive and optional; To is inclusive and required.
type TotalsFilter struct {
	AccountIDs []int64
	Codes      []string
	Type       accounts.AccountType
	Tag        string
	From       *time.Time
	To         time.Time
}

// LedgerRow is one posted line on an account's general ledger.
type LedgerRow struct {
	EntryID     int64
	Reference   string
	Date        time.Time
	Description string
	Debit       int64
	Credit      int64
	Balance     int64
}

// GeneralLedger lists an account's movements with running balance.
type GeneralLedger struct {
	Account accounts.Account
	From    time.Time
	To      time.Time
	Opening int64
	Rows    []LedgerRow
	Closing int64
}

// IntegrityIssue describes a posted entry violating the balance invariant.
type IntegrityIssue struct {
	EntryID   int64
	Reference string
	Debit     int64
	Credit    int64
	LineCount int
}
