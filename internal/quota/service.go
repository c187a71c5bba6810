package quota

import (
	"context"
	"log/slog"

	"github.com/coder/quartz"

	"github.com/leadscope/directory/internal/directory"
	"github.com/leadscope/directory/internal/metrics"
	inats "github.com/leadscope/directory/internal/nats"
)

// Resolver resolves unlocked contact IDs into full contact records,
// best-effort: missing IDs are dropped, not an error.
type Resolver interface {
	ResolveByIDs(ctx context.Context, ids []string) ([]directory.Contact, error)
}

// EventPublisher receives quota lifecycle events. Satisfied by
// nats.Publisher; nil disables eventing.
type EventPublisher interface {
	PublishQuotaEvent(ctx context.Context, event inats.QuotaEvent) error
}

// Service is the single point of truth for quota state. Every read and
// mutation goes through Store.Update, a serialized read-modify-write per
// user, so concurrent unlock calls observe each other's effects and the
// persisted set can never exceed the cap.
type Service struct {
	store  Store
	policy Policy
	events EventPublisher

	// Clock is replaceable in tests; defaults to the real clock.
	Clock quartz.Clock
}

func NewService(store Store, policy Policy, events EventPublisher) *Service {
	return &Service{
		store:  store,
		policy: policy,
		events: events,
		Clock:  quartz.NewReal(),
	}
}

// Policy returns the active window policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// Status returns the user's current quota state. An expired window is reset
// and the reset persisted before the state is reported, so the response
// always describes a live window (or none at all).
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	var (
		expired  bool
		timeLeft int64
	)

	rec, err := s.store.Update(ctx, userID, func(rec Record) (Record, error) {
		next, exp, left := s.policy.EvaluateReset(rec, s.Clock.Now())
		expired = exp
		timeLeft = left.Milliseconds()
		if !exp {
			return rec, ErrNoChange
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		metrics.QuotaWindowResetsTotal.Inc()
		s.publish(ctx, userID, inats.EventWindowReset, 0)
	}

	status := &Status{TimeLeftMS: timeLeft}
	if rec.WindowStart != nil {
		status.Meta = &rec
	}
	return status, nil
}

// Unlock runs admission control for a batch of contact IDs and persists the
// outcome atomically. Resubmitting a batch is idempotent: membership is
// set-based, so retries after a timeout are safe.
func (s *Service) Unlock(ctx context.Context, userID string, contactIDs []string) (*UnlockResult, error) {
	var (
		dec       Decision
		prevCount int
	)

	rec, err := s.store.Update(ctx, userID, func(rec Record) (Record, error) {
		prevCount = rec.Count()
		next, d := s.policy.TryUnlock(rec, s.Clock.Now(), contactIDs)
		dec = d
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	s.recordOutcome(ctx, userID, dec, prevCount)

	return &UnlockResult{
		Allowed:     dec.Allowed,
		Count:       dec.Count,
		Remaining:   dec.Remaining,
		UnlockedIDs: rec.UnlockedIDs,
		WindowStart: rec.WindowStart,
	}, nil
}

func (s *Service) recordOutcome(ctx context.Context, userID string, dec Decision, prevCount int) {
	if dec.Expired {
		metrics.QuotaWindowResetsTotal.Inc()
		s.publish(ctx, userID, inats.EventWindowReset, 0)
	}

	switch {
	case dec.Allowed:
		metrics.QuotaUnlocksTotal.WithLabelValues(metrics.OutcomeAllowed).Inc()
	case dec.Truncated:
		metrics.QuotaUnlocksTotal.WithLabelValues(metrics.OutcomeTruncated).Inc()
		s.publish(ctx, userID, inats.EventBatchTruncated, dec.Count)
	default:
		metrics.QuotaUnlocksTotal.WithLabelValues(metrics.OutcomeDenied).Inc()
	}

	// Only the call that crosses the cap raises the event, not every denied
	// retry afterwards.
	if dec.Count >= s.policy.Cap && prevCount < s.policy.Cap {
		s.publish(ctx, userID, inats.EventLimitReached, dec.Count)
	}
}

func (s *Service) publish(ctx context.Context, userID, eventType string, count int) {
	if s.events == nil {
		return
	}
	event := inats.QuotaEvent{
		UserID:    userID,
		EventType: eventType,
		Count:     count,
		Timestamp: s.Clock.Now().UTC(),
	}
	if err := s.events.PublishQuotaEvent(ctx, event); err != nil {
		slog.Warn("quota: publishing event", "error", err, "event_type", eventType, "user_id", userID)
	}
}
