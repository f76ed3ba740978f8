package matcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

func intp(v int) *int { return &v }

// countingStrategy records how often it runs and returns a fixed result.
type countingStrategy struct {
	name  string
	calls atomic.Int32
	match *Match
	err   error
	panic bool
}

func (s *countingStrategy) Name() string { return s.name }

func (s *countingStrategy) Attempt(context.Context, Descriptor) (*Match, error) {
	s.calls.Add(1)
	if s.panic {
		panic("boom")
	}
	return s.match, s.err
}

type fakeMappings struct {
	store.MappingStore
	entries map[int]domain.MappingEntry
	err     error
}

func (f *fakeMappings) FindByPrimary(_ context.Context, id int) (*domain.MappingEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.entries[id]
	if !ok {
		return nil, store.ErrMappingNotFound
	}
	return &e, nil
}

func (f *fakeMappings) SearchByTitle(_ context.Context, _ string, _ int) ([]domain.MappingEntry, error) {
	out := make([]domain.MappingEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

type fakeSource struct {
	name  string
	value int
	found bool
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) LookupSecondary(context.Context, int) (int, bool, error) {
	f.calls++
	return f.value, f.found, f.err
}

type fakeSearcher struct {
	candidates []Candidate
	err        error
	queries    []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]Candidate, error) {
	f.queries = append(f.queries, query)
	return f.candidates, f.err
}

type fakeRecorder struct {
	mu        sync.Mutex
	anomalies []domain.MatchAnomaly
}

func (f *fakeRecorder) RecordAnomaly(_ context.Context, a *domain.MatchAnomaly) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, *a)
	return nil
}

func TestResolve_DirectShortCircuits(t *testing.T) {
	later := &countingStrategy{name: "later", match: &Match{SecondaryID: 999}}
	m := New([]Strategy{DirectStrategy{}, later})

	got, err := m.Resolve(context.Background(), Descriptor{Title: "Cowboy Bebop", SecondaryID: intp(1)})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, 1, got.SecondaryID)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, MethodDirect, got.Method)
	assert.Zero(t, later.calls.Load(), "later stages must not run")
}

func TestResolve_FailingStageDegrades(t *testing.T) {
	failing := &countingStrategy{name: "failing", err: errors.New("network down")}
	panicking := &countingStrategy{name: "panicking", panic: true}
	empty := &countingStrategy{name: "empty"}
	winner := &countingStrategy{name: "winner", match: &Match{SecondaryID: 7, Confidence: 0.8, Method: MethodFuzzy}}

	m := New([]Strategy{failing, panicking, empty, winner})

	got, err := m.Resolve(context.Background(), Descriptor{Title: "Trigun"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.SecondaryID)
}

func TestResolve_AllStagesFailIsNoMatch(t *testing.T) {
	m := New([]Strategy{
		&countingStrategy{name: "a", err: errors.New("a")},
		&countingStrategy{name: "b", err: errors.New("b")},
	})

	got, err := m.Resolve(context.Background(), Descriptor{Title: "Trigun"})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolve_CachesSuccessOnly(t *testing.T) {
	hit := &countingStrategy{name: "hit", match: &Match{SecondaryID: 3}}
	m := New([]Strategy{hit})
	d := Descriptor{Title: "Cowboy Bebop", Year: 1998}

	for range 3 {
		_, err := m.Resolve(context.Background(), d)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hit.calls.Load())
	assert.Equal(t, CacheStats{Size: 1, Keys: []string{"cowboy bebop|1998|"}}, m.CacheStats())

	miss := &countingStrategy{name: "miss"}
	m2 := New([]Strategy{miss})
	for range 2 {
		got, err := m2.Resolve(context.Background(), d)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, int32(2), miss.calls.Load(), "misses are not cached")
	assert.Zero(t, m2.CacheStats().Size)

	assert.Equal(t, 1, m.ClearCache())
	assert.Zero(t, m.CacheStats().Size)
}

func TestResolve_ReturnsCopies(t *testing.T) {
	m := New([]Strategy{&countingStrategy{name: "hit", match: &Match{SecondaryID: 3}}})
	d := Descriptor{Title: "Cowboy Bebop"}

	first, _ := m.Resolve(context.Background(), d)
	first.SecondaryID = 42

	second, _ := m.Resolve(context.Background(), d)
	assert.Equal(t, 3, second.SecondaryID)
}

// gateStrategy blocks its first call until release is closed.
type gateStrategy struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gateStrategy) Name() string { return "gate" }

func (g *gateStrategy) Attempt(context.Context, Descriptor) (*Match, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return nil, nil
}

func TestResolve_CancelledCallerDoesNotStarveJoiner(t *testing.T) {
	gate := &gateStrategy{entered: make(chan struct{}), release: make(chan struct{})}
	winner := &countingStrategy{name: "winner", match: &Match{SecondaryID: 11, Confidence: 0.9, Method: MethodFuzzy}}
	m := New([]Strategy{gate, winner})
	d := Descriptor{Title: "Haibane Renmei"}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := m.Resolve(ctxA, d)
		errA <- err
	}()
	<-gate.entered

	type result struct {
		match *Match
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		got, err := m.Resolve(context.Background(), d)
		resB <- result{got, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	close(gate.release)

	assert.ErrorIs(t, <-errA, context.Canceled)

	select {
	case r := <-resB:
		require.NoError(t, r.err)
		require.NotNil(t, r.match, "live caller must not inherit the aborted run")
		assert.Equal(t, 11, r.match.SecondaryID)
	case <-time.After(2 * time.Second):
		t.Fatal("live caller did not return")
	}
	assert.Equal(t, int32(1), winner.calls.Load())
}

func TestStoreStrategy(t *testing.T) {
	s := &StoreStrategy{Mappings: &fakeMappings{entries: map[int]domain.MappingEntry{
		1: {PrimaryID: 1, SecondaryID: 101, Title: "Cowboy Bebop"},
	}}}

	got, err := s.Attempt(context.Background(), Descriptor{PrimaryID: intp(1)})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 101, got.SecondaryID)
	assert.Equal(t, MethodStore, got.Method)

	got, err = s.Attempt(context.Background(), Descriptor{PrimaryID: intp(2)})
	assert.NoError(t, err, "not found is a miss")
	assert.Nil(t, got)

	got, err = s.Attempt(context.Background(), Descriptor{Title: "no ids"})
	assert.NoError(t, err)
	assert.Nil(t, got)

	failing := &StoreStrategy{Mappings: &fakeMappings{err: errors.New("disk")}}
	_, err = failing.Attempt(context.Background(), Descriptor{PrimaryID: intp(1)})
	assert.Error(t, err)
}

func TestExternalStrategy_PriorityAndFailures(t *testing.T) {
	broken := &fakeSource{name: "primary", err: errors.New("timeout")}
	fallback := &fakeSource{name: "fallback", value: 202, found: true}
	s := &ExternalStrategy{Sources: []ExternalSource{broken, fallback}}

	got, err := s.Attempt(context.Background(), Descriptor{PrimaryID: intp(1)})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 202, got.SecondaryID)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, 1, broken.calls)
}

func TestExternalStrategy_DivergenceRecordsAnomaly(t *testing.T) {
	rec := &fakeRecorder{}
	s := &ExternalStrategy{
		Sources: []ExternalSource{
			&fakeSource{name: "primary", value: 101, found: true},
			&fakeSource{name: "fallback", value: 102, found: true},
		},
		Recorder: rec,
	}

	got, err := s.Attempt(context.Background(), Descriptor{PrimaryID: intp(1)})
	require.NoError(t, err)
	assert.Equal(t, 101, got.SecondaryID, "priority order decides")

	require.Len(t, rec.anomalies, 1)
	a := rec.anomalies[0]
	assert.Equal(t, 1, a.PrimaryID)
	assert.Equal(t, "primary", a.ChosenSource)
	assert.Equal(t, map[string]int{"primary": 101, "fallback": 102}, a.Candidates)
}

func TestExternalStrategy_AgreementIsNotAnomaly(t *testing.T) {
	rec := &fakeRecorder{}
	s := &ExternalStrategy{
		Sources: []ExternalSource{
			&fakeSource{name: "primary", value: 101, found: true},
			&fakeSource{name: "fallback", value: 101, found: true},
			&fakeSource{name: "missing"},
		},
		Recorder: rec,
	}

	_, err := s.Attempt(context.Background(), Descriptor{PrimaryID: intp(1)})
	require.NoError(t, err)
	assert.Empty(t, rec.anomalies)
}

func TestFuzzyStrategy_AcceptsAboveThreshold(t *testing.T) {
	searcher := &fakeSearcher{candidates: []Candidate{
		{SecondaryID: 10, Title: "Cowboy Bebop: Tengoku no Tobira", Year: 2001, MediaType: "movie", Episodes: 1},
		{SecondaryID: 1, Title: "Cowboy Bebop", Year: 1998, MediaType: "TV", Episodes: 26},
	}}
	s := &FuzzyStrategy{Searcher: searcher}

	got, err := s.Attempt(context.Background(), Descriptor{Title: "Cowboy Bebop (TV)", Year: 1998})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, 1, got.SecondaryID)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
	assert.Equal(t, []string{"cowboy bebop"}, searcher.queries)
}

func TestFuzzyStrategy_RejectsBelowThreshold(t *testing.T) {
	s := &FuzzyStrategy{Searcher: &fakeSearcher{candidates: []Candidate{
		// Title matches perfectly but nothing else does: 0.6 < 0.7.
		{SecondaryID: 1, Title: "Cowboy Bebop", Year: 2010, MediaType: "music"},
	}}}

	got, err := s.Attempt(context.Background(), Descriptor{Title: "Cowboy Bebop", Year: 1998})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFuzzyStrategy_UsesAlternateTitles(t *testing.T) {
	s := &FuzzyStrategy{Searcher: &fakeSearcher{candidates: []Candidate{
		{SecondaryID: 16498, Title: "Shingeki no Kyojin", AltTitles: []string{"Attack on Titan"}, Year: 2013, MediaType: "tv", Episodes: 25},
	}}}

	got, err := s.Attempt(context.Background(), Descriptor{Title: "Attack on Titan Season 1", Year: 2013})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 16498, got.SecondaryID)
}

func TestMappingSearcher(t *testing.T) {
	s := &MappingSearcher{Mappings: &fakeMappings{entries: map[int]domain.MappingEntry{
		1: {PrimaryID: 1, SecondaryID: 101, Title: "Cowboy Bebop", Metadata: domain.MappingMetadata{
			Synonyms: []string{"Kaubōi Bibappu"}, Type: "TV", Episodes: 26, Year: 1998,
		}},
	}}}

	got, err := s.Search(context.Background(), "bebop", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Candidate{
		PrimaryID: 1, SecondaryID: 101, Title: "Cowboy Bebop",
		AltTitles: []string{"Kaubōi Bibappu"}, Year: 1998, MediaType: "TV", Episodes: 26,
	}, got[0])
}

func TestMatcher_Anomalies(t *testing.T) {
	m := New(nil)
	got, err := m.Anomalies(context.Background(), 10)
	assert.NoError(t, err)
	assert.Nil(t, got)
}
