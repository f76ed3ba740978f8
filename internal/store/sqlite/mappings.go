package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const mappingColumns = `primary_id, secondary_id, title, source, confirmed_by, confidence,
	metadata, created_at, updated_at`

// Imports refresh descriptive fields but never touch the identity of a user-verified row.
const upsertMappingSQL = `INSERT INTO mappings (
		primary_id, secondary_id, title, source, confirmed_by, confidence,
		metadata, search_text, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(primary_id) DO UPDATE SET
		secondary_id = CASE WHEN mappings.source IN ('manual', 'confirmed')
			THEN mappings.secondary_id ELSE excluded.secondary_id END,
		source = CASE WHEN mappings.source IN ('manual', 'confirmed')
			THEN mappings.source ELSE excluded.source END,
		confirmed_by = CASE WHEN mappings.source IN ('manual', 'confirmed')
			THEN mappings.confirmed_by ELSE excluded.confirmed_by END,
		confidence = CASE WHEN mappings.source IN ('manual', 'confirmed')
			THEN mappings.confidence ELSE excluded.confidence END,
		title = excluded.title,
		metadata = excluded.metadata,
		search_text = excluded.search_text,
		updated_at = excluded.updated_at`

// scanMapping scans a row into a MappingEntry.
func scanMapping(scanner interface{ Scan(dest ...any) error }) (*domain.MappingEntry, error) {
	var (
		m           domain.MappingEntry
		source      string
		confirmedBy sql.NullString
		confidence  sql.NullFloat64
		metadata    string
		createdAt   string
		updatedAt   string
	)

	err := scanner.Scan(
		&m.PrimaryID, &m.SecondaryID, &m.Title, &source, &confirmedBy, &confidence,
		&metadata, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Source = domain.MappingSource(source)
	if confirmedBy.Valid {
		m.ConfirmedBy = &confirmedBy.String
	}
	if confidence.Valid {
		m.Confidence = &confidence.Float64
	}
	if err := decodeJSON(metadata, &m.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &m, nil
}

func getMapping(ctx context.Context, q querier, where string, arg any) (*domain.MappingEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE `+where+` LIMIT 1`, arg)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrMappingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}
	return m, nil
}

// FindByPrimary returns the mapping keyed by primaryID.
func (s *Store) FindByPrimary(ctx context.Context, primaryID int) (*domain.MappingEntry, error) {
	return getMapping(ctx, s.db, "primary_id = ?", primaryID)
}

// FindBySecondary returns a mapping for secondaryID, preferring user-verified rows.
func (s *Store) FindBySecondary(ctx context.Context, secondaryID int) (*domain.MappingEntry, error) {
	return getMapping(ctx, s.db,
		"secondary_id = ? ORDER BY CASE source WHEN 'imported' THEN 1 ELSE 0 END, updated_at DESC",
		secondaryID)
}

func mappingArgs(m *domain.MappingEntry) ([]any, error) {
	metadata, err := encodeJSON(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	var confidence sql.NullFloat64
	if m.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *m.Confidence, Valid: true}
	}
	return []any{
		m.PrimaryID, m.SecondaryID, m.Title, string(m.Source),
		nullableString(m.ConfirmedBy), confidence, metadata,
		searchText(m.Titles()...),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	}, nil
}

// UpsertBatch writes all entries in a single transaction.
func (s *Store) UpsertBatch(ctx context.Context, entries []domain.MappingEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertMappingSQL)
		if err != nil {
			return fmt.Errorf("prepare mapping upsert: %w", err)
		}
		defer stmt.Close()

		for i := range entries {
			m := entries[i]
			if m.PrimaryID <= 0 || m.SecondaryID <= 0 {
				return fmt.Errorf("mapping %d: %w", m.PrimaryID, store.ErrInvalidInput)
			}
			if m.Source == "" {
				m.Source = domain.MappingSourceImported
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			m.UpdatedAt = now

			args, err := mappingArgs(&m)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("upsert mapping %d: %w", m.PrimaryID, err)
			}
		}
		return nil
	})
}

// CreateManual upserts a user-created mapping, replacing any imported row with the same primary id.
func (s *Store) CreateManual(ctx context.Context, primaryID, secondaryID int, title, userID string) (*domain.MappingEntry, error) {
	if primaryID <= 0 || secondaryID <= 0 {
		return nil, store.ErrInvalidInput
	}

	var out *domain.MappingEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		_, err := tx.ExecContext(ctx, `INSERT INTO mappings (
				primary_id, secondary_id, title, source, confirmed_by, confidence,
				metadata, search_text, created_at, updated_at
			) VALUES (?, ?, ?, 'manual', ?, 1.0, '{}', ?, ?, ?)
			ON CONFLICT(primary_id) DO UPDATE SET
				secondary_id = excluded.secondary_id,
				title = CASE WHEN excluded.title = '' THEN mappings.title ELSE excluded.title END,
				search_text = CASE WHEN excluded.title = '' THEN mappings.search_text ELSE excluded.search_text END,
				source = 'manual',
				confirmed_by = excluded.confirmed_by,
				confidence = 1.0,
				updated_at = excluded.updated_at`,
			primaryID, secondaryID, title, userID, searchText(title), now, now)
		if err != nil {
			return fmt.Errorf("create manual mapping: %w", err)
		}

		out, err = getMapping(ctx, tx, "primary_id = ?", primaryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm marks an existing mapping as verified by userID. Manual rows stay manual.
func (s *Store) Confirm(ctx context.Context, primaryID int, userID string) (*domain.MappingEntry, error) {
	var out *domain.MappingEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE mappings SET
				source = CASE WHEN source = 'manual' THEN 'manual' ELSE 'confirmed' END,
				confirmed_by = ?,
				confidence = 1.0,
				updated_at = ?
			WHERE primary_id = ?`,
			userID, formatTime(time.Now()), primaryID)
		if err != nil {
			return fmt.Errorf("confirm mapping: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return store.ErrMappingNotFound
		}

		out, err = getMapping(ctx, tx, "primary_id = ?", primaryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchByTitle returns mappings whose title or synonyms contain text, case-insensitively.
func (s *Store) SearchByTitle(ctx context.Context, text string, limit int) ([]domain.MappingEntry, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mappingColumns+` FROM mappings
		 WHERE search_text LIKE ? ESCAPE '\'
		 ORDER BY CASE WHEN lower(title) = ? THEN 0 ELSE 1 END, length(title), primary_id
		 LIMIT ?`,
		"%"+escapeLike(text)+"%", text, limit)
	if err != nil {
		return nil, fmt.Errorf("search mappings: %w", err)
	}
	defer rows.Close()

	var out []domain.MappingEntry
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CountMappings returns the number of stored mappings.
func (s *Store) CountMappings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mappings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return n, nil
}
