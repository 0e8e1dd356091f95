package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// PeriodResolver maps an entry date onto its fiscal period.
type PeriodResolver interface {
	Resolve(ctx context.Context, date time.Time) (periods.Period, error)
}

// Invalidator is notified after ledger state changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Observer receives ledger outcome notifications, typically metrics.
type Observer interface {
	EntryPosted()
	EntryVoided()
	EntryRejected(class shared.Class)
}

type Service struct {
	repo        Repository
	periods     PeriodResolver
	invalidator Invalidator
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo Repository, resolver PeriodResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, periods: resolver, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithInvalidator registers a hook run after every post or void.
func (s *Service) WithInvalidator(inv Invalidator) *Service {
	s.invalidator = inv
	return s
}

// WithObserver registers an outcome observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// Post validates and posts a new entry atomically.
func (s *Service) Post(ctx context.Context, draft Draft) (Entry, error) {
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return Entry{}, s.reject(err)
	}
	period, err := s.periods.Resolve(ctx, draft.Date)
	if err != nil {
		return Entry{}, s.reject(err)
	}
	var entry Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reference, err := s.preparePosting(ctx, tx, period, draft)
		if err != nil {
			return err
		}
		postedAt := s.now().UTC()
		e := draft.toEntry(EntryStatusPosted)
		e.PeriodID = &period.ID
		e.Reference = reference
		e.PostedAt = &postedAt
		inserted, err := tx.InsertEntry(ctx, e)
		if err != nil {
			return err
		}
		if draft.SourceModule != "" {
			if err := tx.LinkSource(ctx, draft.SourceModule, draft.SourceID, inserted.ID); err != nil {
				return err
			}
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return Entry{}, s.reject(err)
	}
	s.logger.Info("journal posted", slog.Int64("entry_id", entry.ID), slog.String("reference", entry.Reference), slog.String("period", period.Code()))
	s.afterChange(ctx)
	if s.observer != nil {
		s.observer.EntryPosted()
	}
	return entry, nil
}

// SaveDraft stores an unposted entry. Balance and period checks run at posting time.
func (s *Service) SaveDraft(ctx context.Context, draft Draft) (Entry, error) {
	draft = draft.Normalize()
	if err := draft.ValidateShape(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.InsertEntry(ctx, draft.toEntry(EntryStatusDraft))
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// PostDraft transitions a stored DRAFT entry to POSTED under the same rules as Post.
func (s *Service) PostDraft(ctx context.Context, id, actorID int64) (Entry, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if current.Status != EntryStatusDraft {
		return Entry{}, s.reject(fmt.Errorf("%w: entry %d is %s", shared.ErrInvalidStatus, id, current.Status))
	}
	draft := draftFromEntry(current)
	if err := draft.Validate(); err != nil {
		return Entry{}, s.reject(err)
	}
	period, err := s.periods.Resolve(ctx, draft.Date)
	if err != nil {
		return Entry{}, s.reject(err)
	}
	var entry Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked.Status != EntryStatusDraft {
			return fmt.Errorf("%w: entry %d is %s", shared.ErrInvalidStatus, id, locked.Status)
		}
		reference, err := s.preparePosting(ctx, tx, period, draft)
		if err != nil {
			return err
		}
		postedAt := s.now().UTC()
		if actorID == 0 {
			actorID = locked.PostedBy
		}
		if err := tx.MarkPosted(ctx, id, period.ID, reference, actorID, postedAt); err != nil {
			return err
		}
		if locked.SourceModule != "" {
			if err := tx.LinkSource(ctx, locked.SourceModule, locked.SourceID, id); err != nil {
				return err
			}
		}
		entry = locked
		entry.Status = EntryStatusPosted
		entry.PeriodID = &period.ID
		entry.Reference = reference
		entry.PostedBy = actorID
		entry.PostedAt = &postedAt
		return nil
	})
	if err != nil {
		return Entry{}, s.reject(err)
	}
	s.logger.Info("draft posted", slog.Int64("entry_id", entry.ID), slog.String("reference", entry.Reference))
	s.afterChange(ctx)
	if s.observer != nil {
		s.observer.EntryPosted()
	}
	return entry, nil
}

// preparePosting runs the in-transaction checks shared by Post and PostDraft
// and returns the reference the entry will carry.
func (s *Service) preparePosting(ctx context.Context, tx TxRepository, period periods.Period, draft Draft) (string, error) {
	locked, err := tx.LockPeriod(ctx, period.ID)
	if err != nil {
		return "", err
	}
	if err := locked.RequireOpen(); err != nil {
		return "", err
	}
	accts, err := tx.LoadAccounts(ctx, draft.accountIDs())
	if err != nil {
		return "", err
	}
	for idx, line := range draft.Lines {
		acct, ok := accts[line.AccountID]
		if !ok {
			return "", fmt.Errorf("%w: line %d account %d unknown", shared.ErrInvalidAccount, idx+1, line.AccountID)
		}
		if !acct.IsActive {
			return "", fmt.Errorf("%w: line %d account %s inactive", shared.ErrInvalidAccount, idx+1, acct.Code)
		}
	}
	if draft.Reference != "" {
		exists, err := tx.ReferenceExists(ctx, locked.ID, draft.Reference)
		if err != nil {
			return "", err
		}
		if exists {
			return "", fmt.Errorf("%w: %s", shared.ErrDuplicateReference, draft.Reference)
		}
		return draft.Reference, nil
	}
	seq, err := tx.NextSequence(ctx, locked.ID)
	if err != nil {
		return "", err
	}
	return FormatReference(locked.Year, locked.Month, seq), nil
}

// Void marks a posted entry VOID and posts its reversal in the same period.
func (s *Service) Void(ctx context.Context, in VoidInput) (Entry, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.EntryID == 0 {
		return Entry{}, fmt.Errorf("%w: entry id required", shared.ErrInvalidInput)
	}
	if in.Reason == "" {
		return Entry{}, fmt.Errorf("%w: void reason required", shared.ErrInvalidInput)
	}
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		switch {
		case original.Status == EntryStatusVoid:
			return shared.ErrAlreadyVoid
		case original.Status != EntryStatusPosted:
			return fmt.Errorf("%w: entry %d is %s", shared.ErrInvalidStatus, original.ID, original.Status)
		case original.IsReversal():
			return fmt.Errorf("%w: reversal entries cannot be voided", shared.ErrInvalidStatus)
		case original.PeriodID == nil:
			return fmt.Errorf("%w: posted entry without period", shared.ErrInvalidStatus)
		}
		period, err := tx.LockPeriod(ctx, *original.PeriodID)
		if err != nil {
			return err
		}
		if err := period.RequireOpen(); err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, period.ID)
		if err != nil {
			return err
		}
		at := s.now().UTC()
		inserted, err := tx.InsertEntry(ctx, Entry{
			PeriodID:    &period.ID,
			Date:        original.Date,
			Reference:   FormatReference(period.Year, period.Month, seq),
			Description: fmt.Sprintf("Reversal of %s: %s", original.Reference, in.Reason),
			Status:      EntryStatusPosted,
			ReversesID:  &original.ID,
			PostedBy:    in.ActorID,
			PostedAt:    &at,
			Lines:       reverseLines(original.Lines),
		})
		if err != nil {
			return err
		}
		if err := tx.MarkVoid(ctx, original.ID, inserted.ID, in.Reason, at); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return Entry{}, s.reject(err)
	}
	s.logger.Info("journal voided", slog.Int64("entry_id", in.EntryID), slog.Int64("reversal_id", reversal.ID), slog.Int64("actor_id", in.ActorID))
	s.afterChange(ctx)
	if s.observer != nil {
		s.observer.EntryVoided()
	}
	return reversal, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.repo.Get(ctx, id)
}

// AccountBalance sums posted lines up to and including asOf, oriented by the normal side.
func (s *Service) AccountBalance(ctx context.Context, accountID int64, asOf time.Time) (int64, error) {
	totals, err := s.repo.Totals(ctx, TotalsFilter{AccountIDs: []int64{accountID}, To: shared.DateOnly(asOf)})
	if err != nil {
		return 0, err
	}
	if len(totals) == 0 {
		return 0, shared.ErrAccountNotFound
	}
	return totals[0].Balance(), nil
}

// BalancesAsOf returns every account's oriented balance as of a date.
func (s *Service) BalancesAsOf(ctx context.Context, asOf time.Time) (map[int64]int64, error) {
	totals, err := s.repo.Totals(ctx, TotalsFilter{To: shared.DateOnly(asOf)})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(totals))
	for _, t := range totals {
		out[t.Account.ID] = t.Balance()
	}
	return out, nil
}

// AccountTotals aggregates posted debit and credit totals per account up to to.
// A non-nil from restricts the aggregation to [from, to].
func (s *Service) AccountTotals(ctx context.Context, from *time.Time, to time.Time) ([]AccountTotals, error) {
	filter := TotalsFilter{To: shared.DateOnly(to)}
	if from != nil {
		start := shared.DateOnly(*from)
		if filter.To.Before(start) {
			return nil, fmt.Errorf("%w: to precedes from", shared.ErrInvalidInput)
		}
		filter.From = &start
	}
	return s.repo.Totals(ctx, filter)
}

// BalanceForCodes sums the oriented balances of the given account codes.
func (s *Service) BalanceForCodes(ctx context.Context, codes []string, asOf time.Time) (int64, error) {
	if len(codes) == 0 {
		return 0, fmt.Errorf("%w: account codes required", shared.ErrInvalidInput)
	}
	totals, err := s.repo.Totals(ctx, TotalsFilter{Codes: codes, To: shared.DateOnly(asOf)})
	if err != nil {
		return 0, err
	}
	if len(totals) == 0 {
		return 0, fmt.Errorf("%w: none of %v", shared.ErrAccountNotFound, codes)
	}
	var sum int64
	for _, t := range totals {
		sum += t.Balance()
	}
	return sum, nil
}

// MovementByType sums oriented movements of all accounts of a type within [from, to].
// A non-empty tag restricts the sum to lines carrying that tag.
func (s *Service) MovementByType(ctx context.Context, typ accounts.AccountType, tag string, from, to time.Time) (int64, error) {
	if !typ.Valid() {
		return 0, fmt.Errorf("%w: account type %q", shared.ErrInvalidInput, typ)
	}
	start := shared.DateOnly(from)
	totals, err := s.repo.Totals(ctx, TotalsFilter{Type: typ, Tag: tag, From: &start, To: shared.DateOnly(to)})
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, t := range totals {
		sum += t.Balance()
	}
	return sum, nil
}

// GeneralLedger lists posted movements of an account with an opening and running balance.
func (s *Service) GeneralLedger(ctx context.Context, accountID int64, from, to time.Time) (GeneralLedger, error) {
	from, to = shared.DateOnly(from), shared.DateOnly(to)
	if to.Before(from) {
		return GeneralLedger{}, fmt.Errorf("%w: to precedes from", shared.ErrInvalidInput)
	}
	opening, err := s.repo.Totals(ctx, TotalsFilter{AccountIDs: []int64{accountID}, To: from.AddDate(0, 0, -1)})
	if err != nil {
		return GeneralLedger{}, err
	}
	if len(opening) == 0 {
		return GeneralLedger{}, shared.ErrAccountNotFound
	}
	rows, err := s.repo.LedgerLines(ctx, accountID, from, to)
	if err != nil {
		return GeneralLedger{}, err
	}
	acct := opening[0].Account
	gl := GeneralLedger{Account: acct, From: from, To: to, Opening: opening[0].Balance()}
	running := gl.Opening
	for _, row := range rows {
		running += acct.Orient(row.Debit, row.Credit)
		row.Balance = running
		gl.Rows = append(gl.Rows, row)
	}
	gl.Closing = running
	return gl, nil
}

// VerifyIntegrity lists posted or voided entries whose lines do not balance.
func (s *Service) VerifyIntegrity(ctx context.Context) ([]IntegrityIssue, error) {
	issues, err := s.repo.UnbalancedEntries(ctx)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		s.logger.Error("ledger integrity violation",
			slog.Int64("entry_id", issue.EntryID),
			slog.String("reference", issue.Reference),
			slog.Int64("debit", issue.Debit),
			slog.Int64("credit", issue.Credit))
	}
	return issues, nil
}

func (s *Service) afterChange(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("cache invalidation failed", slog.Any("error", err))
	}
}

func (s *Service) reject(err error) error {
	if s.observer != nil && err != nil && !errors.Is(err, context.Canceled) {
		s.observer.EntryRejected(shared.Classify(err))
	}
	return err
}
