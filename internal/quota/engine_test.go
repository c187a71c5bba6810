package quota

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idBatch(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return ids
}

func TestEvaluateReset(t *testing.T) {
	p := DefaultPolicy()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no active window", func(t *testing.T) {
		rec, expired, left := p.EvaluateReset(Record{}, start)
		assert.False(t, expired)
		assert.Nil(t, rec.WindowStart)
		assert.Zero(t, left)
	})

	t.Run("live window keeps record", func(t *testing.T) {
		rec := Record{WindowStart: &start, UnlockedIDs: []string{"a", "b"}}
		now := start.Add(6 * time.Hour)

		out, expired, left := p.EvaluateReset(rec, now)
		assert.False(t, expired)
		assert.Equal(t, rec, out)
		assert.Equal(t, 18*time.Hour, left)
	})

	t.Run("unexpired one millisecond before boundary", func(t *testing.T) {
		rec := Record{WindowStart: &start, UnlockedIDs: idBatch("c", 50)}
		now := start.Add(p.Window - time.Millisecond)

		out, expired, left := p.EvaluateReset(rec, now)
		assert.False(t, expired)
		assert.Equal(t, 50, out.Count())
		assert.Equal(t, time.Millisecond, left)
	})

	t.Run("expired exactly at boundary", func(t *testing.T) {
		rec := Record{WindowStart: &start, UnlockedIDs: idBatch("c", 50)}
		now := start.Add(p.Window)

		out, expired, left := p.EvaluateReset(rec, now)
		assert.True(t, expired)
		require.NotNil(t, out.WindowStart)
		assert.Equal(t, now, *out.WindowStart)
		assert.Empty(t, out.UnlockedIDs)
		assert.Equal(t, p.Window, left)
	})
}

func TestTryUnlock_FirstBatch(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rec, dec := p.TryUnlock(Record{}, now, []string{"c1", "c2", "c3"})
	assert.True(t, dec.Allowed)
	assert.Equal(t, 3, dec.Count)
	assert.Equal(t, 47, dec.Remaining)
	require.NotNil(t, rec.WindowStart)
	assert.Equal(t, now, *rec.WindowStart)
	assert.Equal(t, []string{"c1", "c2", "c3"}, rec.UnlockedIDs)
}

func TestTryUnlock_IdempotentRetry(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	batch := []string{"c1", "c2", "c3"}

	rec, _ := p.TryUnlock(Record{}, now, batch)
	again, dec := p.TryUnlock(rec, now.Add(time.Minute), batch)

	assert.True(t, dec.Allowed)
	assert.Equal(t, 3, dec.Count)
	assert.Equal(t, rec.UnlockedIDs, again.UnlockedIDs)
	assert.Equal(t, rec.WindowStart, again.WindowStart)
}

func TestTryUnlock_DuplicatesWithinBatch(t *testing.T) {
	p := DefaultPolicy()
	now := time.Now()

	rec, dec := p.TryUnlock(Record{}, now, []string{"c1", "c1", "", "c2"})
	assert.True(t, dec.Allowed)
	assert.Equal(t, 2, dec.Count)
	assert.Equal(t, []string{"c1", "c2"}, rec.UnlockedIDs)
}

func TestTryUnlock_DeniedAtCap(t *testing.T) {
	p := DefaultPolicy()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{WindowStart: &start, UnlockedIDs: idBatch("c", 50)}

	out, dec := p.TryUnlock(rec, start.Add(time.Hour), []string{"new-1"})
	assert.False(t, dec.Allowed)
	assert.Equal(t, 50, dec.Count)
	assert.Equal(t, 50, out.Count())
	assert.NotContains(t, out.UnlockedIDs, "new-1")
}

func TestTryUnlock_OverflowTruncates(t *testing.T) {
	p := DefaultPolicy()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{WindowStart: &start, UnlockedIDs: idBatch("c", 48)}

	// 3 new IDs against 2 slots: the set is clamped at the cap and the
	// batch as a whole is reported denied.
	out, dec := p.TryUnlock(rec, start.Add(time.Hour), []string{"n-0", "n-1", "n-2"})
	assert.False(t, dec.Allowed)
	assert.True(t, dec.Truncated)
	assert.Equal(t, 50, dec.Count)
	assert.Equal(t, 50, out.Count())
	assert.Contains(t, out.UnlockedIDs, "n-0")
	assert.Contains(t, out.UnlockedIDs, "n-1")
	assert.NotContains(t, out.UnlockedIDs, "n-2")
}

func TestTryUnlock_ResetThenAdmit(t *testing.T) {
	p := DefaultPolicy()
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{WindowStart: &start, UnlockedIDs: idBatch("c", 50)}
	now := start.Add(p.Window + time.Minute)

	out, dec := p.TryUnlock(rec, now, []string{"fresh-1"})
	assert.True(t, dec.Allowed)
	assert.True(t, dec.Expired)
	assert.Equal(t, 1, dec.Count)
	assert.Equal(t, 49, dec.Remaining)
	require.NotNil(t, out.WindowStart)
	assert.Equal(t, now, *out.WindowStart)
	assert.Equal(t, []string{"fresh-1"}, out.UnlockedIDs)
}

func TestTryUnlock_NeverExceedsCap(t *testing.T) {
	p := Policy{Cap: 10, Window: time.Hour}
	now := time.Now()
	rec := Record{}

	for i := 0; i < 8; i++ {
		rec, _ = p.TryUnlock(rec, now, idBatch(fmt.Sprintf("b%d", i), 3))
		assert.LessOrEqual(t, rec.Count(), p.Cap)
	}
	assert.Equal(t, p.Cap, rec.Count())
}
