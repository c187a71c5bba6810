package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry matches the audit_logs table schema. UserID is the opaque subject
// identifier carried on quota events, not a foreign key.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	EventType string          `json:"event_type"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for audit queries.
type ListParams struct {
	EventType string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
