package syncer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/sources"
	"github.com/shirosync/shirosync-server/internal/store/sqlite"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestTracker() *progress.Tracker {
	return progress.NewTracker(progress.NewMemoryStore(), progress.WithLogger(discardLogger()))
}

type listUpdate struct {
	userID    string
	primaryID int
	update    domain.UserStatusUpdate
}

type fakeList struct {
	mu      sync.Mutex
	entries map[domain.ListStatus][]sources.ListEntry
	errs    map[domain.ListStatus]error
	updates []listUpdate
	search  []matcher.Candidate
}

func (f *fakeList) FetchList(_ context.Context, _ string, status domain.ListStatus) ([]sources.ListEntry, error) {
	if err := f.errs[status]; err != nil {
		return nil, err
	}
	return f.entries[status], nil
}

func (f *fakeList) UpdateEntry(_ context.Context, userID string, primaryID int, update domain.UserStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, listUpdate{userID, primaryID, update})
	return nil
}

func (f *fakeList) Search(context.Context, string, int) ([]matcher.Candidate, error) {
	return f.search, nil
}

func (f *fakeList) sent() []listUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]listUpdate(nil), f.updates...)
}

type fakeLibrary struct {
	series    []sources.Series
	episodes  []sources.Episode
	seriesErr error
	details   map[string]*sources.Series
}

func (f *fakeLibrary) FetchSeries(context.Context, string) ([]sources.Series, error) {
	return f.series, f.seriesErr
}

func (f *fakeLibrary) FetchEpisodes(context.Context, string) ([]sources.Episode, error) {
	return f.episodes, nil
}

func (f *fakeLibrary) ItemDetail(_ context.Context, _, itemID string) (*sources.Series, error) {
	if d, ok := f.details[itemID]; ok {
		return d, nil
	}
	return &sources.Series{ID: itemID}, nil
}

// panickyRecords panics when asked for one primary id.
type panickyRecords struct {
	*sqlite.Store
	panicOn int
}

func (p *panickyRecords) FindRecordByPrimary(ctx context.Context, primaryID int) (*domain.AnimeRecord, error) {
	if primaryID == p.panicOn {
		panic("corrupt row")
	}
	return p.Store.FindRecordByPrimary(ctx, primaryID)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func statusPtr(s domain.ListStatus) *domain.ListStatus { return &s }
func intPtr(v int) *int                               { return &v }

func listEntry(id int, title string, status domain.ListStatus, watched int) sources.ListEntry {
	return sources.ListEntry{
		PrimaryID:    id,
		Title:        title,
		Genres:       []string{"Action"},
		MediaType:    "tv",
		AiringStatus: "finished_airing",
		Episodes:     12,
		Year:         2020,
		User: domain.UserStatusUpdate{
			Status:          statusPtr(status),
			EpisodesWatched: intPtr(watched),
		},
	}
}
