package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// evaluationConcurrency bounds metric computations running at once.
const evaluationConcurrency = 4

// Observer receives evaluation outcomes for metrics.
type Observer interface {
	EventCreated(typ AlertType, severity Severity)
	MetricFailed(typ AlertType)
}

// Service evaluates alert rules and manages their events.
type Service struct {
	repo     Repository
	sources  Sources
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewService wires the repository with the metric sources. A nil
// sources.Projects falls back to the repository's project listing.
func NewService(repo Repository, sources Sources, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sources.Projects == nil {
		sources.Projects = repo
	}
	return &Service{repo: repo, sources: sources, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver attaches an evaluation observer.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

type measured struct {
	rule        Rule
	measurement Measurement
	err         error
}

// Evaluate computes the metric of every enabled rule and records an event for
// each rule past its threshold that has no unacknowledged event yet. A failing
// metric is logged and reported without affecting other rules.
func (s *Service) Evaluate(ctx context.Context, now time.Time) (EvaluationResult, error) {
	if now.IsZero() {
		now = s.now()
	}
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return EvaluationResult{}, err
	}
	enabled := rules[:0:0]
	for _, rule := range rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}

	results := make([]measured, len(enabled))
	var g errgroup.Group
	g.SetLimit(evaluationConcurrency)
	for i, rule := range enabled {
		i, rule := i, rule
		g.Go(func() error {
			m, err := s.measure(ctx, rule, now)
			results[i] = measured{rule: rule, measurement: m, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := EvaluationResult{Evaluated: len(enabled), Created: []Event{}, Suppressed: []AlertType{}, Failed: []RuleFailure{}}
	for _, res := range results {
		if res.err != nil {
			s.fail(&out, res.rule.Type, res.err)
			continue
		}
		spec := specs[res.rule.Type]
		if !spec.crossed(res.measurement.Value, res.rule.Threshold) {
			continue
		}
		event, created, err := s.record(ctx, res.rule, res.measurement, now)
		if err != nil {
			s.fail(&out, res.rule.Type, err)
			continue
		}
		if !created {
			out.Suppressed = append(out.Suppressed, res.rule.Type)
			continue
		}
		out.Created = append(out.Created, event)
		s.logger.Info("alert triggered",
			slog.String("type", string(event.Type)),
			slog.String("severity", string(event.Severity)),
			slog.String("message", event.Message))
		if s.observer != nil {
			s.observer.EventCreated(event.Type, event.Severity)
		}
	}
	return out, nil
}

func (s *Service) measure(ctx context.Context, rule Rule, now time.Time) (m Measurement, err error) {
	spec, ok := specs[rule.Type]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %q", ErrUnknownType, rule.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alerts: %s metric panicked: %v", rule.Type, r)
		}
	}()
	return spec.compute(ctx, s.sources, now)
}

func (s *Service) fail(out *EvaluationResult, typ AlertType, err error) {
	level := slog.LevelError
	if errors.Is(err, ErrMetricUnavailable) {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "alert rule evaluation failed",
		slog.String("type", string(typ)), slog.Any("error", err))
	out.Failed = append(out.Failed, RuleFailure{Type: typ, Error: err.Error()})
	if s.observer != nil {
		s.observer.MetricFailed(typ)
	}
}

// record inserts an event for rule unless one is still unacknowledged. The
// rule row lock serialises concurrent sweeps.
func (s *Service) record(ctx context.Context, rule Rule, m Measurement, now time.Time) (Event, bool, error) {
	var event Event
	var created bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockRule(ctx, rule.Type)
		if err != nil {
			return err
		}
		if !locked.Enabled {
			return nil
		}
		open, err := tx.HasOpenEvent(ctx, locked.ID)
		if err != nil || open {
			return err
		}
		spec := specs[locked.Type]
		if !spec.crossed(m.Value, locked.Threshold) {
			return nil
		}
		event, err = tx.InsertEvent(ctx, Event{
			RuleID:    locked.ID,
			Type:      locked.Type,
			Severity:  SeverityFor(locked.Type, m.Value, locked.Threshold, locked.CriticalRatio),
			Message:   spec.message(m, locked.Threshold),
			Details:   m.Details,
			Metric:    m.Value,
			Threshold: locked.Threshold,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		created = true
		return tx.TouchRule(ctx, locked.ID, now)
	})
	if err != nil {
		return Event{}, false, err
	}
	return event, created, nil
}

// Acknowledge marks an event acknowledged. Acknowledging twice is a no-op.
func (s *Service) Acknowledge(ctx context.Context, eventID, actorID int64) (Event, error) {
	var event Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if current.Acknowledged() {
			event = current
			return nil
		}
		at := s.now()
		if err := tx.AcknowledgeEvent(ctx, eventID, actorID, at); err != nil {
			return err
		}
		current.AcknowledgedAt = &at
		if actorID > 0 {
			current.AcknowledgedBy = &actorID
		}
		event = current
		return nil
	})
	if err != nil {
		return Event{}, err
	}
	return event, nil
}

// ListRules returns every configured rule.
func (s *Service) ListRules(ctx context.Context) ([]Rule, error) {
	return s.repo.ListRules(ctx)
}

// UpdateRule changes threshold, enabled flag and optionally the critical ratio.
func (s *Service) UpdateRule(ctx context.Context, in UpdateRuleInput) (Rule, error) {
	var updated Rule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockRule(ctx, in.Type)
		if err != nil {
			return err
		}
		current.Threshold = in.Threshold
		current.Enabled = in.Enabled
		if in.CriticalRatio != nil {
			current.CriticalRatio = *in.CriticalRatio
		}
		if err := current.Validate(); err != nil {
			return err
		}
		updated, err = tx.UpdateRule(ctx, current)
		return err
	})
	if err != nil {
		return Rule{}, err
	}
	return updated, nil
}

// SeedRules inserts defaults for alert types that have no rule yet and
// returns how many were created.
func (s *Service) SeedRules(ctx context.Context, defaults []Rule) (int, error) {
	var created int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, rule := range defaults {
			if err := rule.Validate(); err != nil {
				return err
			}
			ok, err := tx.InsertRuleIfMissing(ctx, rule)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// ActiveEvents lists unacknowledged events, newest first.
func (s *Service) ActiveEvents(ctx context.Context) ([]Event, error) {
	return s.repo.ActiveEvents(ctx)
}

// History lists events matching the filter with the total count.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Event, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.History(ctx, filter)
}
