package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

// UpsertImportStatus writes the single status row for a dataset.
func (s *Store) UpsertImportStatus(ctx context.Context, status *domain.ImportStatus) error {
	if status.DatasetID == "" {
		return fmt.Errorf("dataset id: %w", store.ErrInvalidInput)
	}
	if status.LastUpdated.IsZero() {
		status.LastUpdated = time.Now()
	}

	stats, err := encodeJSON(status.Statistics)
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO import_status (
			dataset_id, status, last_updated, error_message, statistics, total_entries
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			status = excluded.status,
			last_updated = excluded.last_updated,
			error_message = excluded.error_message,
			statistics = excluded.statistics,
			total_entries = excluded.total_entries`,
		status.DatasetID, string(status.Status), formatTime(status.LastUpdated),
		status.ErrorMessage, stats, status.TotalEntries)
	if err != nil {
		return fmt.Errorf("upsert import status: %w", err)
	}
	return nil
}

// GetImportStatus returns the status row for datasetID.
func (s *Store) GetImportStatus(ctx context.Context, datasetID string) (*domain.ImportStatus, error) {
	var (
		st          domain.ImportStatus
		state       string
		lastUpdated string
		stats       string
	)
	err := s.db.QueryRowContext(ctx, `SELECT dataset_id, status, last_updated, error_message, statistics, total_entries
		FROM import_status WHERE dataset_id = ?`, datasetID).
		Scan(&st.DatasetID, &state, &lastUpdated, &st.ErrorMessage, &stats, &st.TotalEntries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrImportStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import status: %w", err)
	}

	st.Status = domain.ImportState(state)
	if st.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}
	if err := decodeJSON(stats, &st.Statistics); err != nil {
		return nil, fmt.Errorf("decode statistics: %w", err)
	}
	return &st, nil
}
