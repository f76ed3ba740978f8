package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return NewTracker(NewMemoryStore(), WithClock(clock.Now)), clock
}

func TestTracker_PercentageIsDerived(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, KindList, "user-1", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusStarted, s.Status)
	assert.Zero(t, s.Percentage)

	_, err = tr.RecordItem(ctx, s.ID, "Cowboy Bebop", OutcomeAdded)
	require.NoError(t, err)
	got, err := tr.RecordItem(ctx, s.ID, "Trigun", OutcomeUpdated)
	require.NoError(t, err)

	assert.Equal(t, 40, got.Percentage)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "Trigun", got.CurrentItem)
	assert.Equal(t, 1, got.AddedEntries)
	assert.Equal(t, 1, got.UpdatedEntries)
}

func TestTracker_AutoCompletes(t *testing.T) {
	tr, clock := newTestTracker(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, KindLibrary, "user-1", 2)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = tr.RecordItem(ctx, s.ID, "a", OutcomeAdded)
	require.NoError(t, err)
	clock.Advance(time.Second)
	got, err := tr.RecordItem(ctx, s.ID, "b", OutcomeError)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Percentage)
	assert.Equal(t, 1, got.ErrorEntries)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, int64(2000), got.DurationMs)
}

func TestTracker_TerminalSessionOnlyCounts(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, KindList, "user-1", 10)
	require.NoError(t, err)
	_, err = tr.Fail(ctx, s.ID, "list fetch failed")
	require.NoError(t, err)

	got, err := tr.RecordItem(ctx, s.ID, "late", OutcomeSkipped)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 1, got.SkippedEntries)
	assert.Empty(t, got.CurrentItem)

	got, err = tr.Complete(ctx, s.ID, "done")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status, "complete never overrides a failure")
	assert.Equal(t, "list fetch failed", got.Message)
}

func TestTracker_CompleteWithoutTotal(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, KindImport, "", 0)
	require.NoError(t, err)

	got, err := tr.Complete(ctx, s.ID, "imported 0 mappings")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Percentage)
	assert.Equal(t, "imported 0 mappings", got.Message)
}

func TestTracker_SetTotalAndMessage(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, KindList, "user-1", 0)
	require.NoError(t, err)

	_, err = tr.SetTotal(ctx, s.ID, 4)
	require.NoError(t, err)
	_, err = tr.RecordItem(ctx, s.ID, "x", OutcomeAdded)
	require.NoError(t, err)
	got, err := tr.SetMessage(ctx, s.ID, "fetching watching")
	require.NoError(t, err)

	assert.Equal(t, 25, got.Percentage)
	assert.Equal(t, "fetching watching", got.Message)
}

func TestTracker_UnknownSession(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, err := tr.RecordItem(context.Background(), "sync-missing", "x", OutcomeAdded)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}

func TestTracker_UnknownSessionsLeaveNoLocks(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	for _, id := range []string{"sync-a", "sync-b", "sync-c"} {
		_, err := tr.RecordItem(ctx, id, "x", OutcomeAdded)
		require.ErrorIs(t, err, ErrSessionNotFound)
	}

	s, err := tr.Create(ctx, KindList, "alice", 2)
	require.NoError(t, err)
	_, err = tr.RecordItem(ctx, s.ID, "x", OutcomeAdded)
	require.NoError(t, err)
	require.NoError(t, tr.Delete(ctx, s.ID))
	_, err = tr.SetMessage(ctx, s.ID, "late")
	require.ErrorIs(t, err, ErrSessionNotFound)

	tr.locksMu.Lock()
	defer tr.locksMu.Unlock()
	assert.Empty(t, tr.locks)
}

func TestTracker_Sweep(t *testing.T) {
	tr, clock := newTestTracker(t)
	ctx := context.Background()

	old, err := tr.Create(ctx, KindList, "user-1", 1)
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	fresh, err := tr.Create(ctx, KindList, "user-2", 1)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	removed, err := tr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = tr.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = tr.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestTracker_Subscribe(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	var seen []Status
	unsubscribe := tr.Subscribe(func(s Session) { seen = append(seen, s.Status) })

	s, err := tr.Create(ctx, KindList, "user-1", 1)
	require.NoError(t, err)
	_, err = tr.RecordItem(ctx, s.ID, "a", OutcomeAdded)
	require.NoError(t, err)

	unsubscribe()
	_, err = tr.SetMessage(ctx, s.ID, "ignored")
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusStarted, StatusCompleted}, seen)
}

func TestTracker_ConcurrentUpdates(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, KindList, "user-1", 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tr.RecordItem(ctx, s.ID, "item", OutcomeUpdated)
		}()
	}
	wg.Wait()

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.ProcessedItems)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestTracker_List(t *testing.T) {
	tr, clock := newTestTracker(t)
	ctx := context.Background()

	first, _ := tr.Create(ctx, KindList, "a", 1)
	clock.Advance(time.Second)
	second, _ := tr.Create(ctx, KindLibrary, "b", 1)

	got, err := tr.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	require.NoError(t, tr.Delete(ctx, first.ID))
	got, _ = tr.List(ctx)
	assert.Len(t, got, 1)
}
