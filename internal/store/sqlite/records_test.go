package sqlite

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

func intp(v int) *int { return &v }

func makeTestRecord(primary int, title string) *domain.AnimeRecord {
	return &domain.AnimeRecord{
		PrimaryID: intp(primary),
		Title:     title,
		Genres:    []string{"Action", "Sci-Fi"},
		MediaType: "tv",
		Episodes:  26,
		Status:    "finished_airing",
		Sync:      domain.SyncMeta{Active: true},
	}
}

func TestUpsertRecord_CreateThenUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestRecord(1, "Cowboy Bebop")
	created, err := s.UpsertRecord(ctx, r)
	if err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}
	if r.ID == "" {
		t.Fatal("expected generated id")
	}
	if r.Sync.Version != 1 {
		t.Errorf("Version: got %d, want 1", r.Sync.Version)
	}

	r.Episodes = 27
	created, err = s.UpsertRecord(ctx, r)
	if err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	if created {
		t.Error("second upsert should update")
	}
	if r.Sync.Version != 2 {
		t.Errorf("Version: got %d, want 2", r.Sync.Version)
	}

	got, err := s.FindRecordByPrimary(ctx, 1)
	if err != nil {
		t.Fatalf("FindRecordByPrimary: %v", err)
	}
	if got.Episodes != 27 || got.Title != "Cowboy Bebop" {
		t.Errorf("unexpected record: %+v", got)
	}
	if len(got.Genres) != 2 || !got.Sync.Active {
		t.Errorf("unexpected fields: genres=%v active=%v", got.Genres, got.Sync.Active)
	}
}

func TestUpsertRecord_ConvergesOnPrimaryID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := makeTestRecord(1, "Cowboy Bebop")
	if _, err := s.UpsertRecord(ctx, first); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	// A second writer that never saw the first record.
	second := makeTestRecord(1, "Cowboy Bebop")
	created, err := s.UpsertRecord(ctx, second)
	if err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	if created {
		t.Error("expected update of the existing record")
	}
	if second.ID != first.ID {
		t.Errorf("ID: got %q, want %q", second.ID, first.ID)
	}

	n, _ := s.CountRecords(ctx)
	if n != 1 {
		t.Errorf("CountRecords: got %d, want 1", n)
	}
}

func TestUpsertRecord_NeverReplacesSecondaryID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestRecord(1, "Cowboy Bebop")
	r.ExternalIDs.Secondary = intp(101)
	if _, err := s.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	r.ExternalIDs.Secondary = intp(999)
	if _, err := s.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	if *r.ExternalIDs.Secondary != 101 {
		t.Errorf("Secondary: got %d, want 101", *r.ExternalIDs.Secondary)
	}
}

func TestUpsertRecord_PreservesSyncTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	synced := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
	r := makeTestRecord(1, "Cowboy Bebop")
	r.Sync.LastListSync = &synced
	if _, err := s.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	fresh := makeTestRecord(1, "Cowboy Bebop")
	if _, err := s.UpsertRecord(ctx, fresh); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	got, _ := s.FindRecordByPrimary(ctx, 1)
	if got.Sync.LastListSync == nil || !got.Sync.LastListSync.Equal(synced) {
		t.Errorf("LastListSync: got %v, want %v", got.Sync.LastListSync, synced)
	}
}

func TestUpsertRecord_RequiresTitle(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpsertRecord(context.Background(), &domain.AnimeRecord{PrimaryID: intp(1)})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

type recordingIndexer struct {
	ids []string
}

func (r *recordingIndexer) IndexRecord(_ context.Context, record *domain.AnimeRecord) error {
	r.ids = append(r.ids, record.ID)
	return nil
}

func TestUpsertRecord_NotifiesIndexer(t *testing.T) {
	s := newTestStore(t)
	idx := &recordingIndexer{}
	s.SetRecordIndexer(idx)

	r := makeTestRecord(1, "Cowboy Bebop")
	if _, err := s.UpsertRecord(context.Background(), r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	if len(idx.ids) != 1 || idx.ids[0] != r.ID {
		t.Errorf("indexer saw %v", idx.ids)
	}
}

func TestFindRecordByExternalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestRecord(1, "Cowboy Bebop")
	r.ExternalIDs.Secondary = intp(101)
	r.Sync.LibraryID = "lib-abc"
	r.SetExternalID("tvdb", "76885")
	if _, err := s.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	tests := []struct {
		kind, value string
	}{
		{"primary", "1"},
		{"secondary", "101"},
		{"library", "lib-abc"},
		{"tvdb", "76885"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, err := s.FindRecordByExternalID(ctx, tt.kind, tt.value)
			if err != nil {
				t.Fatalf("FindRecordByExternalID: %v", err)
			}
			if got.ID != r.ID {
				t.Errorf("ID: got %q, want %q", got.ID, r.ID)
			}
		})
	}

	if _, err := s.FindRecordByExternalID(ctx, "secondary", "abc"); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.FindRecordByExternalID(ctx, "tvdb", "1"); !errors.Is(err, store.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpsertUserStatus_MergesPresentFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestRecord(1, "Cowboy Bebop")
	if _, err := s.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	watching := domain.ListStatusWatching
	score := 9
	comment := "see you space cowboy"
	st, created, err := s.UpsertUserStatus(ctx, r.ID, "user-1", domain.UserStatusUpdate{
		Status:  &watching,
		Score:   &score,
		Comment: &comment,
	})
	if err != nil {
		t.Fatalf("UpsertUserStatus: %v", err)
	}
	if !created {
		t.Error("expected create")
	}
	if st.Status != domain.ListStatusWatching || st.Score != 9 {
		t.Errorf("unexpected status: %+v", st)
	}

	episodes := 12
	st, created, err = s.UpsertUserStatus(ctx, r.ID, "user-1", domain.UserStatusUpdate{EpisodesWatched: &episodes})
	if err != nil {
		t.Fatalf("UpsertUserStatus: %v", err)
	}
	if created {
		t.Error("expected update")
	}
	if st.EpisodesWatched != 12 || st.Score != 9 || st.Comment != comment {
		t.Errorf("absent fields were not preserved: %+v", st)
	}

	got, err := s.FindRecordByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("FindRecordByID: %v", err)
	}
	if len(got.Users) != 1 {
		t.Fatalf("Users: got %d, want 1", len(got.Users))
	}
	if u := got.UserStatus("user-1"); u == nil || u.EpisodesWatched != 12 {
		t.Errorf("embedded status: %+v", u)
	}
}

func TestUpsertUserStatus_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.UpsertUserStatus(ctx, "anime-missing", "user-1", domain.UserStatusUpdate{}); !errors.Is(err, store.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}

	r := makeTestRecord(1, "Cowboy Bebop")
	if _, err := s.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	bogus := domain.ListStatus("rewatching")
	if _, _, err := s.UpsertUserStatus(ctx, r.ID, "user-1", domain.UserStatusUpdate{Status: &bogus}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRemoveUserStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := makeTestRecord(1, "Cowboy Bebop")
	if _, err := s.UpsertRecord(ctx, r); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}
	if _, _, err := s.UpsertUserStatus(ctx, r.ID, "user-1", domain.UserStatusUpdate{}); err != nil {
		t.Fatalf("UpsertUserStatus: %v", err)
	}

	if err := s.RemoveUserStatus(ctx, r.ID, "user-1"); err != nil {
		t.Fatalf("RemoveUserStatus: %v", err)
	}
	if err := s.RemoveUserStatus(ctx, r.ID, "user-1"); !errors.Is(err, store.ErrUserStatusNotFound) {
		t.Errorf("expected ErrUserStatusNotFound, got %v", err)
	}
}

func TestListRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		r := makeTestRecord(i, "Title "+strconv.Itoa(i))
		if _, err := s.UpsertRecord(ctx, r); err != nil {
			t.Fatalf("UpsertRecord: %v", err)
		}
		if _, _, err := s.UpsertUserStatus(ctx, r.ID, "user-1", domain.UserStatusUpdate{}); err != nil {
			t.Fatalf("UpsertUserStatus: %v", err)
		}
	}

	page, err := s.ListRecords(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size: got %d, want 2", len(page))
	}
	for _, r := range page {
		if len(r.Users) != 1 {
			t.Errorf("record %s: got %d users", r.ID, len(r.Users))
		}
	}
}
