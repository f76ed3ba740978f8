package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirosync/shirosync-server/internal/domain"
)

func setupTestIndex(t *testing.T) *TitleIndex {
	t.Helper()

	index, created, err := NewTitleIndex(Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	require.True(t, created)
	t.Cleanup(func() { _ = index.Close() })

	return index
}

func intp(v int) *int { return &v }

func testRecords() []*domain.AnimeRecord {
	return []*domain.AnimeRecord{
		{
			ID: "anime-1", PrimaryID: intp(1), Title: "Cowboy Bebop",
			AltTitles: []string{"Kaubōi Bibappu"}, MediaType: "tv", Episodes: 26, Year: 1998,
			ExternalIDs: domain.ExternalIDs{Secondary: intp(101)},
			Sync:        domain.SyncMeta{Active: true},
		},
		{
			ID: "anime-2", PrimaryID: intp(16498), Title: "Shingeki no Kyojin",
			AltTitles: []string{"Attack on Titan", "進撃の巨人"}, MediaType: "tv", Episodes: 25, Year: 2013,
			Sync: domain.SyncMeta{Active: true},
		},
		{
			ID: "anime-3", Title: "Trigun", MediaType: "tv", Episodes: 26, Year: 1998,
			Sync: domain.SyncMeta{Active: false},
		},
	}
}

func TestNewTitleIndex_Reopen(t *testing.T) {
	dir := t.TempDir()

	index, created, err := NewTitleIndex(Options{DataPath: dir})
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, index.IndexRecord(context.Background(), testRecords()[0]))
	require.NoError(t, index.Close())

	index, created, err = NewTitleIndex(Options{DataPath: dir})
	require.NoError(t, err)
	assert.False(t, created)
	defer index.Close()

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestTitleIndex_SearchReturnsCandidates(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.IndexRecords(testRecords()))

	got, err := index.Search(context.Background(), "cowboy bebop", 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	top := got[0]
	assert.Equal(t, "anime-1", top.RecordID)
	assert.Equal(t, "Cowboy Bebop", top.Title)
	assert.Equal(t, []string{"Kaubōi Bibappu"}, top.AltTitles)
	assert.Equal(t, 1998, top.Year)
	assert.Equal(t, 26, top.Episodes)
	assert.Equal(t, 1, top.PrimaryID)
	assert.Equal(t, 101, top.SecondaryID)
}

func TestTitleIndex_SearchAlternateTitle(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.IndexRecords(testRecords()))

	got, err := index.Search(context.Background(), "attack on titan", 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "anime-2", got[0].RecordID)
	assert.Len(t, got[0].AltTitles, 2)
}

func TestTitleIndex_SearchToleratesTypo(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.IndexRecords(testRecords()))

	got, err := index.Search(context.Background(), "cowboy bebob", 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "anime-1", got[0].RecordID)
}

func TestTitleIndex_SkipsInactive(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.IndexRecords(testRecords()))

	got, err := index.Search(context.Background(), "trigun", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTitleIndex_DeleteAndRebuild(t *testing.T) {
	index := setupTestIndex(t)
	require.NoError(t, index.IndexRecords(testRecords()))

	require.NoError(t, index.DeleteRecord("anime-1"))
	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	require.NoError(t, index.Rebuild())
	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

type pagedRecords struct {
	records []*domain.AnimeRecord
}

func (p *pagedRecords) ListRecords(_ context.Context, offset, limit int) ([]*domain.AnimeRecord, error) {
	if offset >= len(p.records) {
		return nil, nil
	}
	return p.records[offset:min(offset+limit, len(p.records))], nil
}

func TestTitleIndex_Reindex(t *testing.T) {
	index := setupTestIndex(t)

	n, err := index.Reindex(context.Background(), &pagedRecords{records: testRecords()})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestNewRecordDocument(t *testing.T) {
	doc := NewRecordDocument(&domain.AnimeRecord{
		ID: "anime-9", Title: "Attack on Titan Season 2", AltTitles: []string{"Shingeki no Kyojin 2"},
	})
	assert.Equal(t, []string{"attack on titan", "shingeki no kyojin 2"}, doc.MatchTitles)

	m := doc.ToMap()
	assert.NotContains(t, m, "primary_id")
	assert.NotContains(t, m, "year")
}
