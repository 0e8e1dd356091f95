package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidAmount indicates a non-positive line amount or unknown side.
	ErrInvalidAmount = errors.New("accounting: line amount must be positive")
	// ErrInvalidAccount indicates an unknown or inactive account.
	ErrInvalidAccount = errors.New("accounting: account unknown or inactive")
	// ErrDuplicateReference indicates the reference is already used in the period.
	ErrDuplicateReference = errors.New("accounting: reference already used in period")
	// ErrDuplicateAccountCode indicates the account code already exists.
	ErrDuplicateAccountCode = errors.New("accounting: account code already exists")
	// ErrInvalidInput indicates malformed request data.
	ErrInvalidInput = errors.New("accounting: invalid input")

	// ErrPeriodClosed indicates the period does not accept postings.
	ErrPeriodClosed = errors.New("accounting: period is not open")
	// ErrPeriodAlreadyClosed indicates a double close.
	ErrPeriodAlreadyClosed = errors.New("accounting: period already closed")
	// ErrCloseInProgress indicates another close holds the period.
	ErrCloseInProgress = errors.New("accounting: period close already in progress")
	// ErrPriorPeriodOpen indicates an earlier period must be closed first.
	ErrPriorPeriodOpen = errors.New("accounting: earlier period still open")
	// ErrAlreadyVoid indicates the entry was voided before.
	ErrAlreadyVoid = errors.New("accounting: journal entry already void")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrAccountReferenced indicates the account has posted lines.
	ErrAccountReferenced = errors.New("accounting: account referenced by journal lines")

	// ErrNoPeriodProvisioned indicates no period exists for a date.
	ErrNoPeriodProvisioned = errors.New("accounting: no fiscal period provisioned for date")
	// ErrPeriodNotFound indicates an unknown period id.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
)

// Class groups errors by how callers should react.
type Class string

const (
	ClassValidation       Class = "VALIDATION"
	ClassLifecycle        Class = "LIFECYCLE"
	ClassDataAvailability Class = "DATA_AVAILABILITY"
	ClassNotFound         Class = "NOT_FOUND"
	ClassInternal         Class = "INTERNAL"
)

var classes = []struct {
	err   error
	class Class
}{
	{ErrUnbalanced, ClassValidation},
	{ErrTooFewLines, ClassValidation},
	{ErrInvalidAmount, ClassValidation},
	{ErrInvalidAccount, ClassValidation},
	{ErrDuplicateReference, ClassValidation},
	{ErrDuplicateAccountCode, ClassValidation},
	{ErrInvalidInput, ClassValidation},
	{ErrSourceAlreadyLinked, ClassValidation},
	{ErrPeriodClosed, ClassLifecycle},
	{ErrPeriodAlreadyClosed, ClassLifecycle},
	{ErrCloseInProgress, ClassLifecycle},
	{ErrPriorPeriodOpen, ClassLifecycle},
	{ErrAlreadyVoid, ClassLifecycle},
	{ErrInvalidStatus, ClassLifecycle},
	{ErrAccountReferenced, ClassLifecycle},
	{ErrNoPeriodProvisioned, ClassDataAvailability},
	{ErrPeriodNotFound, ClassNotFound},
	{ErrJournalNotFound, ClassNotFound},
	{ErrAccountNotFound, ClassNotFound},
}

// Classify maps err onto the ledger error taxonomy.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassInternal
}
