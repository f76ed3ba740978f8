package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

func TestImportStatus_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetImportStatus(ctx, "offline-db"); !errors.Is(err, store.ErrImportStatusNotFound) {
		t.Fatalf("expected ErrImportStatusNotFound, got %v", err)
	}

	if err := s.UpsertImportStatus(ctx, &domain.ImportStatus{
		DatasetID: "offline-db",
		Status:    domain.ImportStateInProgress,
	}); err != nil {
		t.Fatalf("UpsertImportStatus: %v", err)
	}

	err := s.UpsertImportStatus(ctx, &domain.ImportStatus{
		DatasetID:    "offline-db",
		Status:       domain.ImportStateSuccess,
		Statistics:   domain.ImportStats{Processed: 3, WithPrimaryID: 2, WithSecondaryID: 2, Complete: 1},
		TotalEntries: 3,
	})
	if err != nil {
		t.Fatalf("UpsertImportStatus: %v", err)
	}

	got, err := s.GetImportStatus(ctx, "offline-db")
	if err != nil {
		t.Fatalf("GetImportStatus: %v", err)
	}
	if got.Status != domain.ImportStateSuccess {
		t.Errorf("Status: got %q", got.Status)
	}
	if got.Statistics.Complete != 1 || got.TotalEntries != 3 {
		t.Errorf("unexpected stats: %+v", got)
	}
	if got.LastUpdated.IsZero() {
		t.Error("LastUpdated not set")
	}
}

func TestAnomalies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, chosen := range []int{101, 102} {
		err := s.RecordAnomaly(ctx, &domain.MatchAnomaly{
			PrimaryID:    1,
			Chosen:       chosen,
			ChosenSource: "primary",
			Candidates:   map[string]int{"primary": chosen, "fallback": 999},
		})
		if err != nil {
			t.Fatalf("RecordAnomaly: %v", err)
		}
	}

	got, err := s.ListAnomalies(ctx, 10)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d anomalies, want 2", len(got))
	}
	if got[0].Chosen != 102 {
		t.Errorf("expected newest first, got %+v", got[0])
	}
	if got[0].Candidates["fallback"] != 999 {
		t.Errorf("Candidates: got %v", got[0].Candidates)
	}
}
