package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/leadscope/directory/internal/metrics"
	inats "github.com/leadscope/directory/internal/nats"
)

// Consumer listens on the quota event subject and persists entries to the
// database, giving each account a durable history of window resets and cap
// crossings.
type Consumer struct {
	repo        *Repository
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new quota event Consumer.
func NewConsumer(repo *Repository, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "audit-persister", inats.SubjectQuotaEvent)
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", "audit-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.QuotaEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("audit consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	entry := &Entry{
		ID:        uuid.New(),
		UserID:    event.UserID,
		EventType: event.EventType,
		CreatedAt: event.Timestamp,
	}

	// Store the unlock count as JSONB for filtering without schema churn.
	if data, err := json.Marshal(map[string]int{"count": event.Count}); err == nil {
		entry.Details = data
	}

	if err := c.repo.Insert(ctx, entry); err != nil {
		slog.Error("audit consumer: persisting entry", "error", err, "event_type", event.EventType)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	metrics.AuditEventsPersistedTotal.Inc()

	slog.Debug("audit consumer: persisted event",
		"event_type", event.EventType,
		"user_id", event.UserID,
	)
}
