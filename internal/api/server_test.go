package api

import (
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/sources"
	"github.com/shirosync/shirosync-server/internal/sources/listsource"
	"github.com/shirosync/shirosync-server/internal/sse"
	"github.com/shirosync/shirosync-server/internal/store/sqlite"
	"github.com/shirosync/shirosync-server/internal/syncer"
	"github.com/shirosync/shirosync-server/internal/validation"
)

const testDataset = `{
  "data": [
    {
      "sources": ["https://anilist.co/anime/1", "https://myanimelist.net/anime/1"],
      "title": "Cowboy Bebop",
      "type": "TV",
      "episodes": 26
    },
    {
      "sources": ["https://myanimelist.net/anime/30", "https://anilist.co/anime/30"],
      "title": "Neon Genesis Evangelion",
      "type": "TV",
      "episodes": 26
    }
  ]
}`

// testEnvelope decodes both success and error envelopes.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeEnvelope[T any](t *testing.T, body []byte) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

type stubList struct {
	entries []sources.ListEntry
}

func (f *stubList) FetchList(_ context.Context, _ string, status domain.ListStatus) ([]sources.ListEntry, error) {
	if status != domain.ListStatusWatching {
		return nil, nil
	}
	return f.entries, nil
}

func (f *stubList) UpdateEntry(context.Context, string, int, domain.UserStatusUpdate) error {
	return nil
}

func (f *stubList) Search(context.Context, string, int) ([]matcher.Candidate, error) {
	return nil, nil
}

type stringFetcher string

func (f stringFetcher) Fetch(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(f))), nil
}

type testServer struct {
	*Server
	api     humatest.TestAPI
	store   *sqlite.Store
	tracker *progress.Tracker
	runner  *syncer.Runner
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tracker := progress.NewTracker(progress.NewMemoryStore(), progress.WithLogger(logger))
	runner := syncer.NewRunner(tracker, nil, logger)
	t.Cleanup(runner.Wait)

	m := matcher.New([]matcher.Strategy{
		matcher.DirectStrategy{},
		&matcher.StoreStrategy{Mappings: st},
	}, matcher.WithLogger(logger), matcher.WithAnomalyStore(st))

	orch := syncer.New(syncer.Deps{
		Records:  st,
		Mappings: st,
		Matcher:  m,
		List: &stubList{entries: []sources.ListEntry{{
			PrimaryID: 1,
			Title:     "Cowboy Bebop",
			Genres:    []string{"Action"},
			MediaType: "tv",
			Episodes:  26,
			Year:      1998,
			User: domain.UserStatusUpdate{
				Status: func() *domain.ListStatus { s := domain.ListStatusWatching; return &s }(),
			},
		}}},
		Progress: tracker,
		Logger:   logger,
	}, syncer.Options{})

	services := &Services{
		Orchestrator: orch,
		Runner:       runner,
		Progress:     tracker,
		Importer:     mapping.NewImporter(st, st, mapping.WithTracker(tracker), mapping.WithLogger(logger)),
		Dataset:      stringFetcher(testDataset),
		DatasetID:    "offline",
		Mappings:     st,
		Records:      st,
		ImportStatus: st,
		Tokens:       listsource.NewStaticTokens(map[string]string{"alice": "token-alice"}),
		Matcher:      m,
		Validator:    validation.New(),
	}

	sseManager := sse.NewManager(logger)
	server := NewServer(services, sse.NewHandler(sseManager, tracker, logger), sseManager, Options{}, logger)
	t.Cleanup(server.Close)

	return &testServer{
		Server:  server,
		api:     humatest.Wrap(t, server.api),
		store:   st,
		tracker: tracker,
		runner:  runner,
	}
}
