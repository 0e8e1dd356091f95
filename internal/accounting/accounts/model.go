package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Side is the debit or credit side of a line or a normal balance.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Valid reports whether s is DEBIT or CREDIT.
func (s Side) Valid() bool {
	return s == SideDebit || s == SideCredit
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// DefaultNormalSide returns the conventional normal balance for an account type.
func DefaultNormalSide(t AccountType) Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account models a chart of accounts node.
type Account struct {
	ID         int64
	Code       string
	Name       string
	Type       AccountType
	NormalSide Side
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Orient turns raw debit/credit sums into a balance signed by the normal side.
func (a Account) Orient(debit, credit int64) int64 {
	if a.NormalSide == SideCredit {
		return credit - debit
	}
	return debit - credit
}

// CreateInput describes a new account.
type CreateInput struct {
	Code       string
	Name       string
	Type       AccountType
	NormalSide Side
}

// Normalize trims fields and fills the normal side from the type.
func (in CreateInput) Normalize() CreateInput {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Type = AccountType(strings.ToUpper(string(in.Type)))
	in.NormalSide = Side(strings.ToUpper(string(in.NormalSide)))
	if in.NormalSide == "" {
		in.NormalSide = DefaultNormalSide(in.Type)
	}
	return in
}

// Validate checks required fields.
func (in CreateInput) Validate() error {
	if in.Code == "" {
		return fmt.Errorf("%w: account code required", shared.ErrInvalidInput)
	}
	if in.Name == "" {
		return fmt.Errorf("%w: account name required", shared.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", shared.ErrInvalidInput, in.Type)
	}
	if !in.NormalSide.Valid() {
		return fmt.Errorf("%w: unknown normal side %q", shared.ErrInvalidInput, in.NormalSide)
	}
	return nil
}
