package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/leadscope/directory/internal/directory"
)

// TrackerState is the client-side quota state.
type TrackerState string

const (
	// StateNormal: under the cap, pages load normally.
	StateNormal TrackerState = "normal"
	// StateLimitReached: at the cap, only the cached view is shown until a
	// resync observes a rolled-over window.
	StateLimitReached TrackerState = "limit_reached"
	// StateResyncing: a scheduled or initial refresh is in flight.
	StateResyncing TrackerState = "resyncing"
)

const (
	resyncTimeout       = 10 * time.Second
	resyncRetryInterval = 30 * time.Second
)

// Tracker is the client-side cache of one user's quota state. It performs
// optimistic pre-checks before unlock calls, latches the limit-reached
// transition exactly once per crossing, and schedules a single resync timer
// at the server-computed window expiry. The tracker never decides a reset on
// its own: leaving StateLimitReached requires a resync that observes the
// server-side rollover.
//
// A Tracker is bound to one authenticated user via its Client. When the user
// changes, Close the old tracker and construct a new one.
type Tracker struct {
	client Client
	policy Policy
	clock  quartz.Clock

	onLimitReached func(count int)

	mu          sync.Mutex
	state       TrackerState
	ids         []string
	idSet       map[string]struct{}
	cached      []directory.Contact
	cachedSet   map[string]struct{}
	windowStart *time.Time
	timer       *quartz.Timer
	closed      bool
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock injects a clock, used by tests to drive the resync timer.
func WithTrackerClock(clock quartz.Clock) TrackerOption {
	return func(t *Tracker) { t.clock = clock }
}

// WithTrackerPolicy overrides the default policy used for optimistic checks
// and expiry derivation. The server remains authoritative regardless.
func WithTrackerPolicy(p Policy) TrackerOption {
	return func(t *Tracker) { t.policy = p }
}

// WithOnLimitReached registers a callback fired once per fresh cap crossing.
// It is not fired when a session starts already at the cap.
func WithOnLimitReached(fn func(count int)) TrackerOption {
	return func(t *Tracker) { t.onLimitReached = fn }
}

func NewTracker(client Client, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		client: client,
		policy: DefaultPolicy(),
		clock:  quartz.NewReal(),
		state:  StateNormal,
		idSet:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load performs the initial sync: fetch quota state, resolve the cached
// records, and schedule a resync if the session starts at the cap. On error
// the last-known projection is kept untouched.
func (t *Tracker) Load(ctx context.Context) error {
	t.setState(StateResyncing)

	status, err := t.client.Quota(ctx)
	if err != nil {
		t.setState(StateNormal)
		return err
	}

	t.mu.Lock()
	t.applyStatusLocked(status)
	needCache := status.Meta != nil && len(status.Meta.UnlockedIDs) > 0
	t.mu.Unlock()

	if needCache {
		contacts, err := t.client.UnlockedContacts(ctx)
		if err != nil {
			slog.Warn("quota tracker: resolving cached contacts", "error", err)
			return nil
		}
		t.mu.Lock()
		t.setCachedLocked(contacts)
		t.mu.Unlock()
	}
	return nil
}

// Unlock reveals a batch of contacts. Two optimistic short-circuits avoid
// round trips: a locally known cap denies immediately, and a batch whose IDs
// are all already unlocked succeeds without calling out (the server's set
// union would be a no-op anyway). Otherwise the server decides and the local
// projection is reconciled from its response.
func (t *Tracker) Unlock(ctx context.Context, contacts []directory.Contact) (*UnlockResult, error) {
	ids := make([]string, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}

	t.mu.Lock()
	if t.state == StateLimitReached {
		result := &UnlockResult{Count: len(t.ids), WindowStart: t.windowStart}
		t.mu.Unlock()
		return result, nil
	}
	if len(t.ids) > 0 && t.allKnownLocked(ids) {
		result := &UnlockResult{
			Allowed:     true,
			Count:       len(t.ids),
			Remaining:   t.policy.Cap - len(t.ids),
			UnlockedIDs: append([]string(nil), t.ids...),
			WindowStart: t.windowStart,
		}
		t.mu.Unlock()
		return result, nil
	}
	t.mu.Unlock()

	result, err := t.client.Unlock(ctx, ids)
	if err != nil {
		// No local mutation: neither denial nor success may be assumed.
		return nil, err
	}

	t.mu.Lock()
	prev := len(t.ids)
	t.setIDsLocked(result.UnlockedIDs)
	t.windowStart = result.WindowStart
	for _, c := range contacts {
		if _, admitted := t.idSet[c.ID]; admitted {
			t.addCachedLocked(c)
		}
	}

	var cb func(int)
	if result.Count >= t.policy.Cap {
		t.state = StateLimitReached
		t.scheduleLocked(t.timeLeftLocked())
		if prev < t.policy.Cap && t.onLimitReached != nil {
			cb = t.onLimitReached
		}
	} else {
		t.state = StateNormal
	}
	t.mu.Unlock()

	if cb != nil {
		cb(result.Count)
	}
	return result, nil
}

// Resync forces an immediate refresh from the service. It is also the body
// of the scheduled expiry timer.
func (t *Tracker) Resync() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.state = StateResyncing
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()

	status, err := t.client.Quota(ctx)
	if err != nil {
		slog.Warn("quota tracker: resync failed", "error", err)
		t.mu.Lock()
		// Keep the degraded view and retry; the cap may still be in force.
		t.state = StateLimitReached
		t.scheduleLocked(resyncRetryInterval)
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	t.applyStatusLocked(status)
	t.mu.Unlock()
}

// Close cancels the scheduled resync. Must be called on teardown and before
// switching users so no timer leaks across identities.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.stopTimerLocked()
}

// State returns the current tracker state.
func (t *Tracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Count returns the locally known unlock count.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

// Remaining returns the locally known headroom under the cap.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if left := t.policy.Cap - len(t.ids); left > 0 {
		return left
	}
	return 0
}

// LimitReached reports whether the tracker is in the cached view.
func (t *Tracker) LimitReached() bool {
	return t.State() == StateLimitReached
}

// CachedContacts returns a copy of the resolved unlocked records.
func (t *Tracker) CachedContacts() []directory.Contact {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]directory.Contact(nil), t.cached...)
}

// Unlocked reports whether every ID in the batch is already unlocked, so
// callers can skip the unlock round trip for a page they have seen.
func (t *Tracker) Unlocked(ids []string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids) > 0 && t.allKnownLocked(ids)
}

func (t *Tracker) setState(s TrackerState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// applyStatusLocked reconciles the local projection with an authoritative
// status response and manages the resync timer.
func (t *Tracker) applyStatusLocked(status *Status) {
	var ids []string
	if status.Meta != nil {
		ids = status.Meta.UnlockedIDs
		t.windowStart = status.Meta.WindowStart
	} else {
		t.windowStart = nil
	}
	t.setIDsLocked(ids)

	// Drop cached records that fell out of the set (window rollover).
	if len(t.cached) > 0 {
		kept := t.cached[:0]
		for _, c := range t.cached {
			if _, ok := t.idSet[c.ID]; ok {
				kept = append(kept, c)
			}
		}
		t.cached = kept
		for id := range t.cachedSet {
			if _, ok := t.idSet[id]; !ok {
				delete(t.cachedSet, id)
			}
		}
	}

	if len(ids) >= t.policy.Cap {
		t.state = StateLimitReached
		t.scheduleLocked(status.TimeLeft())
	} else {
		t.state = StateNormal
		t.stopTimerLocked()
	}
}

func (t *Tracker) setIDsLocked(ids []string) {
	t.ids = append(t.ids[:0], ids...)
	t.idSet = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		t.idSet[id] = struct{}{}
	}
}

func (t *Tracker) allKnownLocked(ids []string) bool {
	for _, id := range ids {
		if _, ok := t.idSet[id]; !ok {
			return false
		}
	}
	return true
}

func (t *Tracker) addCachedLocked(c directory.Contact) {
	if t.cachedSet == nil {
		t.cachedSet = make(map[string]struct{})
	}
	if _, ok := t.cachedSet[c.ID]; ok {
		return
	}
	t.cachedSet[c.ID] = struct{}{}
	t.cached = append(t.cached, c)
}

func (t *Tracker) setCachedLocked(contacts []directory.Contact) {
	t.cached = t.cached[:0]
	t.cachedSet = make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		t.cachedSet[c.ID] = struct{}{}
		t.cached = append(t.cached, c)
	}
}

func (t *Tracker) timeLeftLocked() time.Duration {
	if t.windowStart == nil {
		return t.policy.Window
	}
	left := t.windowStart.Add(t.policy.Window).Sub(t.clock.Now())
	if left <= 0 {
		left = time.Second
	}
	return left
}

// scheduleLocked arms exactly one resync timer, replacing any prior one.
func (t *Tracker) scheduleLocked(d time.Duration) {
	if t.closed {
		return
	}
	t.stopTimerLocked()
	t.timer = t.clock.AfterFunc(d, t.Resync)
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
