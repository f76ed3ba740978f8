// Package store defines the persistence contracts used by the sync engine.
// Every write is an upsert keyed by natural identity, so concurrent runs converge without locks.
package store

import (
	"context"

	"github.com/shirosync/shirosync-server/internal/domain"
)

// MappingStore persists primary <-> secondary cross-references.
type MappingStore interface {
	FindByPrimary(ctx context.Context, primaryID int) (*domain.MappingEntry, error)
	FindBySecondary(ctx context.Context, secondaryID int) (*domain.MappingEntry, error)
	// UpsertBatch writes entries keyed by primary id in one transaction.
	// Rows whose source is manual or confirmed keep their secondary id and source.
	UpsertBatch(ctx context.Context, entries []domain.MappingEntry) error
	// CreateManual upserts a user-created mapping in place.
	CreateManual(ctx context.Context, primaryID, secondaryID int, title, userID string) (*domain.MappingEntry, error)
	// Confirm marks an existing mapping as verified. Returns ErrMappingNotFound when absent.
	Confirm(ctx context.Context, primaryID int, userID string) (*domain.MappingEntry, error)
	SearchByTitle(ctx context.Context, text string, limit int) ([]domain.MappingEntry, error)
	CountMappings(ctx context.Context) (int, error)
}

// RecordStore persists AnimeRecords and their embedded per-user statuses.
type RecordStore interface {
	FindRecordByID(ctx context.Context, id string) (*domain.AnimeRecord, error)
	FindRecordByPrimary(ctx context.Context, primaryID int) (*domain.AnimeRecord, error)
	// FindRecordByExternalID looks up by kind "secondary", "library" or any key of ExternalIDs.Others.
	FindRecordByExternalID(ctx context.Context, kind, value string) (*domain.AnimeRecord, error)
	// UpsertRecord inserts or updates the record's own fields. Embedded users are ignored.
	// Returns true when the record was created.
	UpsertRecord(ctx context.Context, record *domain.AnimeRecord) (bool, error)
	// UpsertUserStatus applies the present fields of update to the (record, user) row.
	// Returns the stored status and whether it was created.
	UpsertUserStatus(ctx context.Context, recordID, userID string, update domain.UserStatusUpdate) (*domain.UserListStatus, bool, error)
	RemoveUserStatus(ctx context.Context, recordID, userID string) error
	ListRecords(ctx context.Context, offset, limit int) ([]*domain.AnimeRecord, error)
	CountRecords(ctx context.Context) (int, error)
}

// ImportStatusStore persists one status row per dataset id.
type ImportStatusStore interface {
	UpsertImportStatus(ctx context.Context, status *domain.ImportStatus) error
	GetImportStatus(ctx context.Context, datasetID string) (*domain.ImportStatus, error)
}

// AnomalyStore persists mapping divergences for later review.
type AnomalyStore interface {
	RecordAnomaly(ctx context.Context, anomaly *domain.MatchAnomaly) error
	ListAnomalies(ctx context.Context, limit int) ([]domain.MatchAnomaly, error)
}

// RecordIndexer keeps a title search index in step with record writes.
type RecordIndexer interface {
	IndexRecord(ctx context.Context, record *domain.AnimeRecord) error
}

// NoopRecordIndexer is a RecordIndexer that does nothing.
type NoopRecordIndexer struct{}

// IndexRecord is a no-op.
func (NoopRecordIndexer) IndexRecord(context.Context, *domain.AnimeRecord) error { return nil }
