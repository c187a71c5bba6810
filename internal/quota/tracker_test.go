package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/directory/internal/directory"
)

// fakeClient runs the real admission rules in memory, standing in for the
// service the way the HTTP client would see it.
type fakeClient struct {
	mu     sync.Mutex
	policy Policy
	clock  quartz.Clock
	rec    Record

	quotaCalls  int
	unlockCalls int
	quotaErr    error
	unlockErr   error
}

func newFakeClient(policy Policy, clock quartz.Clock) *fakeClient {
	return &fakeClient{policy: policy, clock: clock}
}

func (f *fakeClient) Quota(context.Context) (*Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotaCalls++
	if f.quotaErr != nil {
		return nil, f.quotaErr
	}
	next, _, left := f.policy.EvaluateReset(f.rec, f.clock.Now())
	f.rec = next
	status := &Status{TimeLeftMS: left.Milliseconds()}
	if f.rec.WindowStart != nil {
		rec := f.rec
		status.Meta = &rec
	}
	return status, nil
}

func (f *fakeClient) Unlock(_ context.Context, ids []string) (*UnlockResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlockCalls++
	if f.unlockErr != nil {
		return nil, f.unlockErr
	}
	next, dec := f.policy.TryUnlock(f.rec, f.clock.Now(), ids)
	f.rec = next
	return &UnlockResult{
		Allowed:     dec.Allowed,
		Count:       dec.Count,
		Remaining:   dec.Remaining,
		UnlockedIDs: append([]string(nil), f.rec.UnlockedIDs...),
		WindowStart: f.rec.WindowStart,
	}, nil
}

func (f *fakeClient) UnlockedContacts(context.Context) ([]directory.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contacts := make([]directory.Contact, 0, len(f.rec.UnlockedIDs))
	for _, id := range f.rec.UnlockedIDs {
		contacts = append(contacts, directory.Contact{ID: id})
	}
	return contacts, nil
}

func (f *fakeClient) quotaCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotaCalls
}

func (f *fakeClient) unlockCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unlockCalls
}

func (f *fakeClient) setQuotaErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotaErr = err
}

func (f *fakeClient) setUnlockErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlockErr = err
}

func contactBatch(prefix string, n int) []directory.Contact {
	contacts := make([]directory.Contact, n)
	for i, id := range idBatch(prefix, n) {
		contacts[i] = directory.Contact{ID: id}
	}
	return contacts
}

func setupTracker(t *testing.T, policy Policy) (*Tracker, *fakeClient, *quartz.Mock, *[]int) {
	t.Helper()
	mock := quartz.NewMock(t)
	client := newFakeClient(policy, mock)
	limitCalls := &[]int{}
	tr := NewTracker(client,
		WithTrackerPolicy(policy),
		WithTrackerClock(mock),
		WithOnLimitReached(func(count int) { *limitCalls = append(*limitCalls, count) }),
	)
	t.Cleanup(tr.Close)
	return tr, client, mock, limitCalls
}

func TestTracker_LoadFreshSession(t *testing.T) {
	tr, _, _, _ := setupTracker(t, Policy{Cap: 3, Window: time.Hour})

	require.NoError(t, tr.Load(context.Background()))
	assert.Equal(t, StateNormal, tr.State())
	assert.Zero(t, tr.Count())
	assert.Equal(t, 3, tr.Remaining())
}

func TestTracker_UnlockUnderCap(t *testing.T) {
	tr, client, _, limitCalls := setupTracker(t, Policy{Cap: 3, Window: time.Hour})
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	result, err := tr.Unlock(ctx, contactBatch("c", 2))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, tr.Count())
	assert.Equal(t, StateNormal, tr.State())
	assert.Empty(t, *limitCalls)
	assert.Len(t, tr.CachedContacts(), 2)
	assert.Equal(t, 1, client.unlockCallCount())
}

func TestTracker_KnownBatchSkipsRoundTrip(t *testing.T) {
	tr, client, _, _ := setupTracker(t, Policy{Cap: 5, Window: time.Hour})
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	batch := contactBatch("c", 2)
	_, err := tr.Unlock(ctx, batch)
	require.NoError(t, err)

	result, err := tr.Unlock(ctx, batch)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, client.unlockCallCount())
	assert.True(t, tr.Unlocked([]string{"c-0", "c-1"}))
	assert.False(t, tr.Unlocked([]string{"c-0", "other"}))
}

func TestTracker_FreshCrossingFiresCallbackOnce(t *testing.T) {
	tr, client, _, limitCalls := setupTracker(t, Policy{Cap: 3, Window: time.Hour})
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	_, err := tr.Unlock(ctx, contactBatch("c", 3))
	require.NoError(t, err)
	assert.Equal(t, StateLimitReached, tr.State())
	assert.Equal(t, []int{3}, *limitCalls)

	// At the cap the tracker denies locally; the service is not consulted
	// and the callback does not fire again.
	result, err := tr.Unlock(ctx, contactBatch("d", 1))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 1, client.unlockCallCount())
	assert.Equal(t, []int{3}, *limitCalls)
}

func TestTracker_LoadAtCapDoesNotFireCallback(t *testing.T) {
	tr, client, _, limitCalls := setupTracker(t, Policy{Cap: 2, Window: time.Hour})
	ctx := context.Background()

	// Another session already exhausted the quota.
	_, err := client.Unlock(ctx, []string{"c-0", "c-1"})
	require.NoError(t, err)

	require.NoError(t, tr.Load(ctx))
	assert.Equal(t, StateLimitReached, tr.State())
	assert.Empty(t, *limitCalls)
	assert.Len(t, tr.CachedContacts(), 2)
}

func TestTracker_ScheduledResyncClearsLimit(t *testing.T) {
	tr, client, mock, _ := setupTracker(t, Policy{Cap: 2, Window: time.Hour})
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	_, err := tr.Unlock(ctx, contactBatch("c", 2))
	require.NoError(t, err)
	require.Equal(t, StateLimitReached, tr.State())
	quotaCallsBefore := client.quotaCallCount()

	// The resync timer is armed at the window expiry; firing it observes
	// the rolled-over window and releases the cached view.
	mock.Advance(time.Hour).MustWait(ctx)

	assert.Greater(t, client.quotaCallCount(), quotaCallsBefore)
	assert.Equal(t, StateNormal, tr.State())
	assert.Zero(t, tr.Count())
	assert.Empty(t, tr.CachedContacts())
}

func TestTracker_ResyncFailureKeepsCachedView(t *testing.T) {
	tr, client, mock, _ := setupTracker(t, Policy{Cap: 2, Window: time.Hour})
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	_, err := tr.Unlock(ctx, contactBatch("c", 2))
	require.NoError(t, err)

	client.setQuotaErr(errors.New("service unavailable"))
	mock.Advance(time.Hour).MustWait(ctx)
	assert.Equal(t, StateLimitReached, tr.State())
	assert.Equal(t, 2, tr.Count())

	// The retry timer fires once the service is back.
	client.setQuotaErr(nil)
	mock.Advance(resyncRetryInterval).MustWait(ctx)
	assert.Equal(t, StateNormal, tr.State())
	assert.Zero(t, tr.Count())
}

func TestTracker_UnlockErrorLeavesStateUntouched(t *testing.T) {
	tr, client, _, limitCalls := setupTracker(t, Policy{Cap: 3, Window: time.Hour})
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	client.setUnlockErr(errors.New("timeout"))
	_, err := tr.Unlock(ctx, contactBatch("c", 2))
	require.Error(t, err)
	assert.Zero(t, tr.Count())
	assert.Equal(t, StateNormal, tr.State())
	assert.Empty(t, *limitCalls)
}

func TestTracker_CloseCancelsResync(t *testing.T) {
	tr, client, mock, _ := setupTracker(t, Policy{Cap: 2, Window: time.Hour})
	ctx := context.Background()
	require.NoError(t, tr.Load(ctx))

	_, err := tr.Unlock(ctx, contactBatch("c", 2))
	require.NoError(t, err)
	tr.Close()
	quotaCallsBefore := client.quotaCallCount()

	mock.Advance(2 * time.Hour).MustWait(ctx)
	assert.Equal(t, quotaCallsBefore, client.quotaCallCount())
}
