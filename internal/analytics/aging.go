package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Side selects receivables (invoices) or payables (bills).
type Side string

const (
	SideReceivable Side = "RECEIVABLE"
	SidePayable    Side = "PAYABLE"
)

// ParseSide normalises a side selector.
func ParseSide(raw string) (Side, error) {
	switch s := Side(strings.ToUpper(strings.TrimSpace(raw))); s {
	case SideReceivable, SidePayable:
		return s, nil
	case "":
		return SideReceivable, nil
	default:
		return "", fmt.Errorf("analytics: unknown side %q", raw)
	}
}

// DocumentStatus tracks settlement of an invoice or bill.
type DocumentStatus string

const (
	DocumentOpen          DocumentStatus = "OPEN"
	DocumentPartiallyPaid DocumentStatus = "PARTIALLY_PAID"
	DocumentPaid          DocumentStatus = "PAID"
)

// Document is an invoice or bill with amounts in minor units.
type Document struct {
	ID               int64          `json:"id"`
	Side             Side           `json:"side"`
	Number           string         `json:"number"`
	CounterpartyID   int64          `json:"counterparty_id"`
	CounterpartyName string         `json:"counterparty_name"`
	IssueDate        time.Time      `json:"issue_date"`
	DueDate          time.Time      `json:"due_date"`
	Total            int64          `json:"total"`
	Paid             int64          `json:"paid"`
	Status           DocumentStatus `json:"status"`
	PaidAt           *time.Time     `json:"paid_at,omitempty"`
}

// Outstanding is total minus paid.
func (d Document) Outstanding() int64 {
	return d.Total - d.Paid
}

// Bucket labels an overdue range.
type Bucket string

const (
	BucketCurrent Bucket = "CURRENT"
	Bucket1To30   Bucket = "1-30"
	Bucket31To60  Bucket = "31-60"
	Bucket61To90  Bucket = "61-90"
	BucketOver90  Bucket = "90+"
)

// Buckets lists every bucket in reporting order.
var Buckets = []Bucket{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, BucketOver90}

func bucketIndex(b Bucket) int {
	for i, v := range Buckets {
		if v == b {
			return i
		}
	}
	return 0
}

// DaysOverdue counts calendar days from due to asOf; never negative.
func DaysOverdue(due, asOf time.Time) int {
	d := int(shared.DateOnly(asOf).Sub(shared.DateOnly(due)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// BucketFor assigns a document due on due to its bucket as of asOf.
func BucketFor(due, asOf time.Time) Bucket {
	switch days := DaysOverdue(due, asOf); {
	case days <= 0:
		return BucketCurrent
	case days <= 30:
		return Bucket1To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// BucketTotal aggregates documents in one bucket.
type BucketTotal struct {
	Bucket Bucket `json:"bucket"`
	Count  int    `json:"count"`
	Amount int64  `json:"amount"`
}

// CounterpartyAging breaks a counterparty's exposure down by bucket.
type CounterpartyAging struct {
	CounterpartyID int64   `json:"counterparty_id"`
	Name           string  `json:"name"`
	Amounts        []int64 `json:"amounts"`
	Total          int64   `json:"total"`
}

// AgingReport is the bucketed view of one side as of a date.
// Total equals the sum of bucket amounts; Outstanding adds documents not yet due.
type AgingReport struct {
	Side           Side                `json:"side"`
	AsOf           time.Time           `json:"as_of"`
	Buckets        []BucketTotal       `json:"buckets"`
	Count          int                 `json:"count"`
	Total          int64               `json:"total"`
	NotYetDue      BucketTotal         `json:"not_yet_due"`
	Outstanding    int64               `json:"outstanding"`
	Counterparties []CounterpartyAging `json:"counterparties"`
}

// AmountFrom sums bucket amounts from bucket b onwards.
func (r AgingReport) AmountFrom(b Bucket) int64 {
	var sum int64
	for _, bt := range r.Buckets[bucketIndex(b):] {
		sum += bt.Amount
	}
	return sum
}

// AgingOptions tunes which documents are bucketed.
type AgingOptions struct {
	// IncludeNotYetDue buckets documents due after asOf as CURRENT instead of
	// reporting them under NotYetDue.
	IncludeNotYetDue bool
}

// ComputeAging buckets outstanding documents of side as of asOf. It is a pure
// function of its inputs.
func ComputeAging(asOf time.Time, side Side, docs []Document, opts AgingOptions) AgingReport {
	asOf = shared.DateOnly(asOf)
	report := AgingReport{
		Side:           side,
		AsOf:           asOf,
		Buckets:        make([]BucketTotal, len(Buckets)),
		NotYetDue:      BucketTotal{Bucket: BucketCurrent},
		Counterparties: []CounterpartyAging{},
	}
	for i, b := range Buckets {
		report.Buckets[i].Bucket = b
	}
	byParty := map[int64]*CounterpartyAging{}
	for _, doc := range docs {
		outstanding := doc.Outstanding()
		if doc.Side != side || outstanding <= 0 || doc.IssueDate.After(asOf) {
			continue
		}
		report.Outstanding += outstanding
		if shared.DateOnly(doc.DueDate).After(asOf) && !opts.IncludeNotYetDue {
			report.NotYetDue.Count++
			report.NotYetDue.Amount += outstanding
			continue
		}
		idx := bucketIndex(BucketFor(doc.DueDate, asOf))
		report.Buckets[idx].Count++
		report.Buckets[idx].Amount += outstanding
		report.Count++
		report.Total += outstanding

		party, ok := byParty[doc.CounterpartyID]
		if !ok {
			party = &CounterpartyAging{CounterpartyID: doc.CounterpartyID, Name: doc.CounterpartyName, Amounts: make([]int64, len(Buckets))}
			byParty[doc.CounterpartyID] = party
		}
		party.Amounts[idx] += outstanding
		party.Total += outstanding
	}
	for _, p := range byParty {
		report.Counterparties = append(report.Counterparties, *p)
	}
	sort.Slice(report.Counterparties, func(i, j int) bool {
		a, b := report.Counterparties[i], report.Counterparties[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.CounterpartyID < b.CounterpartyID
	})
	return report
}
