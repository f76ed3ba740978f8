package progress

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the shared SessionStore contract against s.
func exerciseStore(t *testing.T, s SessionStore) {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Load(ctx, "sync-missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	a := Session{ID: "sync-a", Type: KindList, UserID: "u", TotalItems: 5, ProcessedItems: 2,
		Percentage: 40, Status: StatusRunning, StartTime: start, LastUpdate: start}
	b := Session{ID: "sync-b", Type: KindImport, Status: StatusStarted,
		StartTime: start.Add(time.Minute), LastUpdate: start.Add(time.Minute)}

	require.NoError(t, s.Save(ctx, b))
	require.NoError(t, s.Save(ctx, a))

	got, err := s.Load(ctx, "sync-a")
	require.NoError(t, err)
	assert.Equal(t, 40, got.Percentage)
	assert.Equal(t, StatusRunning, got.Status)
	assert.True(t, got.StartTime.Equal(start))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sync-a", list[0].ID)

	require.NoError(t, s.Delete(ctx, "sync-a"))
	_, err = s.Load(ctx, "sync-a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadgerStore(filepath.Join(t.TempDir(), "sessions"), time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestBadgerStore_TrackerRoundTrip(t *testing.T) {
	s, err := OpenBadgerStore(filepath.Join(t.TempDir(), "sessions"), 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tr := NewTracker(s)
	ctx := context.Background()

	sess, err := tr.Create(ctx, KindLibrary, "user-1", 2)
	require.NoError(t, err)
	_, err = tr.RecordItem(ctx, sess.ID, "a", OutcomeAdded)
	require.NoError(t, err)

	got, err := tr.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Percentage)
}

// TestRedisStore runs against a real server when REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	s, err := NewRedisStore(ctx, RedisOptions{
		Addr:   addr,
		Prefix: "shirosync:test:" + t.Name() + ":",
		TTL:    time.Minute,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}
