package quota

import (
	"time"
)

// EvaluateReset applies window expiry to rec at now. If the window has run
// its full duration the record is superseded by a fresh one starting at now;
// all prior unlocks stop counting toward the cap. The returned duration is
// the time left in the (possibly new) window, zero when no window is active.
func (p Policy) EvaluateReset(rec Record, now time.Time) (Record, bool, time.Duration) {
	if rec.WindowStart == nil {
		return rec, false, 0
	}

	elapsed := now.Sub(*rec.WindowStart)
	if elapsed >= p.Window {
		start := now
		return Record{WindowStart: &start}, true, p.Window
	}
	return rec, false, p.Window - elapsed
}

// TryUnlock is the admission-control decision: expire the window if due,
// then merge ids into the unlocked set. Merging is a set union in insertion
// order, so resubmitting the same batch never double-counts. Three outcomes:
//
//   - already at cap: denied outright, nothing admitted;
//   - union fits under the cap: fully admitted;
//   - union overflows the cap: the stored set is clamped to the first Cap
//     members and the batch is reported as denied (Truncated set).
//
// The persisted set never exceeds Cap.
func (p Policy) TryUnlock(rec Record, now time.Time, ids []string) (Record, Decision) {
	rec, expired, _ := p.EvaluateReset(rec, now)

	if rec.WindowStart == nil {
		start := now
		rec.WindowStart = &start
	}

	before := len(rec.UnlockedIDs)
	if before >= p.Cap {
		return rec, Decision{Count: before, Expired: expired}
	}

	merged := make([]string, 0, before+len(ids))
	seen := make(map[string]struct{}, before+len(ids))
	for _, id := range rec.UnlockedIDs {
		merged = append(merged, id)
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}

	if len(merged) > p.Cap {
		rec.UnlockedIDs = merged[:p.Cap]
		return rec, Decision{Count: p.Cap, Truncated: true, Expired: expired}
	}

	rec.UnlockedIDs = merged
	return rec, Decision{
		Allowed:   true,
		Count:     len(merged),
		Remaining: p.Cap - len(merged),
		Expired:   expired,
	}
}
