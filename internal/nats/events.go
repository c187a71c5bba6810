package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds quota lifecycle events for audit persistence.
const StreamEvents = "LEADSCOPE_EVENTS"

// Subject constants.
const (
	SubjectQuotaEvent = "leadscope.events.quota"
)

// Quota event types.
const (
	EventLimitReached   = "limit_reached"
	EventWindowReset    = "window_reset"
	EventBatchTruncated = "batch_truncated"
)

// QuotaEvent is published whenever the quota service crosses a state worth
// auditing: the user hit the cap, a batch was clamped, or a window rolled
// over. Publishing is best-effort and never blocks an unlock decision.
type QuotaEvent struct {
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
