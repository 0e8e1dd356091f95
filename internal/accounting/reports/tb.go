package reports

import (
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// AccountBalance models a ledger account with opening balance and period movements.
// Opening is oriented by the normal side; Debit and Credit are raw period totals.
type AccountBalance struct {
	Code       string
	Name       string
	Type       accounts.AccountType
	NormalSide accounts.Side
	Opening    int64
	Debit      int64
	Credit     int64
}

// Closing computes the oriented closing balance for the account.
func (a AccountBalance) Closing() int64 {
	if a.NormalSide == accounts.SideCredit {
		return a.Opening + a.Credit - a.Debit
	}
	return a.Opening + a.Debit - a.Credit
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Opening int64  `json:"opening"`
	Debit   int64  `json:"debit"`
	Credit  int64  `json:"credit"`
	Closing int64  `json:"closing"`
}

// TrialBalanceGroup aggregates accounts sharing a code prefix.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    int64                 `json:"debit"`
	Credit   int64                 `json:"credit"`
}

// TrialBalance lists every account's movements. A sound ledger has TotalDebit == TotalCredit.
type TrialBalance struct {
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  int64               `json:"total_debit"`
	TotalCredit int64               `json:"total_credit"`
}

// Balanced reports whether period debits equal period credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit == tb.TotalCredit
}

// BuildTrialBalance converts account balances into grouped trial balance data.
func BuildTrialBalance(balances []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range balances {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Accounts = append(grp.Accounts, TrialBalanceAccount{
			Code:    acc.Code,
			Name:    acc.Name,
			Opening: acc.Opening,
			Debit:   acc.Debit,
			Credit:  acc.Credit,
			Closing: acc.Closing(),
		})
		grp.Debit += acc.Debit
		grp.Credit += acc.Credit
	}

	sort.Strings(keys)
	result := TrialBalance{Groups: make([]TrialBalanceGroup, 0, len(keys))}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit += grp.Debit
		result.TotalCredit += grp.Credit
	}
	return result
}
