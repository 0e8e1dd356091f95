package journals

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DraftLine describes a journal line of a draft entry.
type DraftLine struct {
	AccountID int64
	Side      accounts.Side
	Amount    int64
	Tags      []string
}

// Draft groups fields required to create a journal entry.
type Draft struct {
	Date         time.Time
	Reference    string
	Description  string
	SourceModule string
	SourceID     uuid.UUID
	PostedBy     int64
	Lines        []DraftLine
}

// ValidateShape checks line count, amounts and sides.
func (d Draft) ValidateShape() error {
	if d.Date.IsZero() {
		return fmt.Errorf("%w: entry date required", shared.ErrInvalidInput)
	}
	if len(d.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	for idx, line := range d.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("%w: line %d missing account", shared.ErrInvalidAccount, idx+1)
		}
		if !line.Side.Valid() {
			return fmt.Errorf("%w: line %d side %q", shared.ErrInvalidAmount, idx+1, line.Side)
		}
		if line.Amount <= 0 {
			return fmt.Errorf("%w: line %d amount %d", shared.ErrInvalidAmount, idx+1, line.Amount)
		}
	}
	if (d.SourceModule == "") != (d.SourceID == uuid.Nil) {
		return fmt.Errorf("%w: source module and source id go together", shared.ErrInvalidInput)
	}
	return nil
}

// Validate checks shape and the exact debit == credit invariant.
func (d Draft) Validate() error {
	if err := d.ValidateShape(); err != nil {
		return err
	}
	var debit, credit int64
	for idx, line := range d.Lines {
		sum := &credit
		if line.Side == accounts.SideDebit {
			sum = &debit
		}
		// Amounts are positive, so the sum only overflows past MaxInt64.
		if *sum > math.MaxInt64-line.Amount {
			return fmt.Errorf("%w: line %d overflows %s total", shared.ErrInvalidAmount, idx+1, line.Side)
		}
		*sum += line.Amount
	}
	if debit != credit {
		return fmt.Errorf("%w: debit %d credit %d", shared.ErrUnbalanced, debit, credit)
	}
	return nil
}

// Normalize trims free text fields.
func (d Draft) Normalize() Draft {
	d.Date = shared.DateOnly(d.Date)
	d.Reference = strings.TrimSpace(d.Reference)
	d.Description = strings.TrimSpace(d.Description)
	d.SourceModule = strings.TrimSpace(d.SourceModule)
	return d
}

func (d Draft) accountIDs() []int64 {
	seen := make(map[int64]struct{}, len(d.Lines))
	ids := make([]int64, 0, len(d.Lines))
	for _, l := range d.Lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	return ids
}

func draftFromEntry(e Entry) Draft {
	d := Draft{
		Date:         e.Date,
		Reference:    e.Reference,
		Description:  e.Description,
		SourceModule: e.SourceModule,
		SourceID:     e.SourceID,
		PostedBy:     e.PostedBy,
	}
	for _, l := range e.Lines {
		d.Lines = append(d.Lines, DraftLine{AccountID: l.AccountID, Side: l.Side, Amount: l.Amount, Tags: l.Tags})
	}
	return d
}

func (d Draft) toEntry(status EntryStatus) Entry {
	e := Entry{
		Date:         d.Date,
		Reference:    d.Reference,
		Description:  d.Description,
		Status:       status,
		SourceModule: d.SourceModule,
		SourceID:     d.SourceID,
		PostedBy:     d.PostedBy,
	}
	for _, l := range d.Lines {
		e.Lines = append(e.Lines, Line{AccountID: l.AccountID, Side: l.Side, Amount: l.Amount, Tags: l.Tags})
	}
	return e
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	EntryID int64
	ActorID int64
	Reason  string
}

func reverseLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, Line{
			AccountID: line.AccountID,
			Side:      line.Side.Opposite(),
			Amount:    line.Amount,
			Tags:      line.Tags,
		})
	}
	return out
}
