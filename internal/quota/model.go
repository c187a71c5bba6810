package quota

import (
	"time"
)

// Record is the durable per-user quota state, stored as opaque JSON metadata
// keyed by the user identifier. A nil WindowStart means no counting window is
// active and UnlockedIDs is empty. UnlockedIDs keeps insertion order and
// never contains duplicates.
type Record struct {
	WindowStart *time.Time `json:"window_start"`
	UnlockedIDs []string   `json:"unlocked_ids"`
}

// Count returns the number of contacts unlocked in the current window.
func (r Record) Count() int {
	return len(r.UnlockedIDs)
}

// Policy is the window configuration: at most Cap distinct contacts per
// rolling Window, measured from the first unlock of the window rather than
// from a fixed clock time.
type Policy struct {
	Cap    int
	Window time.Duration
}

// DefaultPolicy returns the production policy of 50 contacts per 24 hours.
func DefaultPolicy() Policy {
	return Policy{Cap: 50, Window: 24 * time.Hour}
}

// Decision is the outcome of an unlock attempt. Truncated and Expired are
// engine-internal flags: Truncated marks a batch that pushed the set past the
// cap and was clamped, Expired marks a window rollover applied on the way in.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Count     int  `json:"count"`
	Remaining int  `json:"remaining"`

	Truncated bool `json:"-"`
	Expired   bool `json:"-"`
}

// Status is the read projection returned by GET quota. Meta is nil when the
// user has no active window. TimeLeftMS is derived scheduling data only and
// never authorizes anything client-side.
type Status struct {
	Meta       *Record `json:"meta"`
	TimeLeftMS int64   `json:"time_left_ms"`
}

// TimeLeft returns the remaining window duration.
func (s Status) TimeLeft() time.Duration {
	return time.Duration(s.TimeLeftMS) * time.Millisecond
}

// UnlockResult is the wire response of an unlock request.
type UnlockResult struct {
	Allowed     bool       `json:"allowed"`
	Count       int        `json:"count"`
	Remaining   int        `json:"remaining"`
	UnlockedIDs []string   `json:"unlocked_ids"`
	WindowStart *time.Time `json:"window_start"`
}

// UnlockRequest is the body of POST /quota/unlock. The user comes from the
// authenticated request context, never from the payload.
type UnlockRequest struct {
	ContactIDs []string `json:"contact_ids" validate:"required"`
}
