package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/id"
	"github.com/shirosync/shirosync-server/internal/store"
)

const recordColumns = `id, primary_id, secondary_id, external_ids, title, alt_titles, genres, studios,
	media_type, episodes, status, year, synopsis, last_list_sync, last_library_sync,
	library_id, sync_version, active, created_at, updated_at`

const userStatusColumns = `user_id, status, score, episodes_watched, is_rewatching, rewatch_count,
	tags, comment, updated_at`

// scanRecord scans a row into an AnimeRecord without its user statuses.
func scanRecord(scanner interface{ Scan(dest ...any) error }) (*domain.AnimeRecord, error) {
	var (
		r               domain.AnimeRecord
		primaryID       sql.NullInt64
		secondaryID     sql.NullInt64
		externalIDs     string
		altTitles       string
		genres          string
		studios         string
		lastListSync    sql.NullString
		lastLibrarySync sql.NullString
		active          int
		createdAt       string
		updatedAt       string
	)

	err := scanner.Scan(
		&r.ID, &primaryID, &secondaryID, &externalIDs, &r.Title, &altTitles, &genres, &studios,
		&r.MediaType, &r.Episodes, &r.Status, &r.Year, &r.Synopsis, &lastListSync, &lastLibrarySync,
		&r.Sync.LibraryID, &r.Sync.Version, &active, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.PrimaryID = intPtr(primaryID)
	r.ExternalIDs.Secondary = intPtr(secondaryID)
	r.Sync.Active = active != 0

	if err := decodeJSON(externalIDs, &r.ExternalIDs.Others); err != nil {
		return nil, fmt.Errorf("decode external_ids: %w", err)
	}
	if err := decodeJSON(altTitles, &r.AltTitles); err != nil {
		return nil, fmt.Errorf("decode alt_titles: %w", err)
	}
	if err := decodeJSON(genres, &r.Genres); err != nil {
		return nil, fmt.Errorf("decode genres: %w", err)
	}
	if err := decodeJSON(studios, &r.Studios); err != nil {
		return nil, fmt.Errorf("decode studios: %w", err)
	}
	if r.Sync.LastListSync, err = parseNullableTime(lastListSync); err != nil {
		return nil, fmt.Errorf("parse last_list_sync: %w", err)
	}
	if r.Sync.LastLibrarySync, err = parseNullableTime(lastLibrarySync); err != nil {
		return nil, fmt.Errorf("parse last_library_sync: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &r, nil
}

// scanUserStatus scans a row into a UserListStatus.
func scanUserStatus(scanner interface{ Scan(dest ...any) error }) (*domain.UserListStatus, error) {
	var (
		u            domain.UserListStatus
		status       string
		isRewatching int
		tags         string
		updatedAt    string
	)

	err := scanner.Scan(
		&u.UserID, &status, &u.Score, &u.EpisodesWatched, &isRewatching, &u.RewatchCount,
		&tags, &u.Comment, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Status = domain.ListStatus(status)
	u.IsRewatching = isRewatching != 0
	if err := decodeJSON(tags, &u.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}

// loadUsers attaches the record's user statuses.
func loadUsers(ctx context.Context, q querier, r *domain.AnimeRecord) error {
	rows, err := q.QueryContext(ctx,
		`SELECT `+userStatusColumns+` FROM user_list_status WHERE record_id = ? ORDER BY user_id`, r.ID)
	if err != nil {
		return fmt.Errorf("query user statuses: %w", err)
	}
	defer rows.Close()

	r.Users = nil
	for rows.Next() {
		u, err := scanUserStatus(rows)
		if err != nil {
			return fmt.Errorf("scan user status: %w", err)
		}
		r.Users = append(r.Users, *u)
	}
	return rows.Err()
}

func getRecord(ctx context.Context, q querier, where string, args ...any) (*domain.AnimeRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM anime_records WHERE `+where+` LIMIT 1`, args...)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if err := loadUsers(ctx, q, r); err != nil {
		return nil, err
	}
	return r, nil
}

// FindRecordByID returns a record and its user statuses.
func (s *Store) FindRecordByID(ctx context.Context, recordID string) (*domain.AnimeRecord, error) {
	return getRecord(ctx, s.db, "id = ?", recordID)
}

// FindRecordByPrimary returns the record keyed by the list service id.
func (s *Store) FindRecordByPrimary(ctx context.Context, primaryID int) (*domain.AnimeRecord, error) {
	return getRecord(ctx, s.db, "primary_id = ?", primaryID)
}

// FindRecordByExternalID looks a record up by one of its external identities.
func (s *Store) FindRecordByExternalID(ctx context.Context, kind, value string) (*domain.AnimeRecord, error) {
	switch kind {
	case "primary", "secondary":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s id %q: %w", kind, value, store.ErrInvalidInput)
		}
		return getRecord(ctx, s.db, kind+"_id = ? ORDER BY active DESC, created_at", n)
	case "library":
		return getRecord(ctx, s.db, "library_id = ? ORDER BY active DESC, created_at", value)
	case "":
		return nil, store.ErrInvalidInput
	}
	if strings.ContainsAny(kind, `"\`) {
		return nil, fmt.Errorf("external id kind %q: %w", kind, store.ErrInvalidInput)
	}
	return getRecord(ctx, s.db, "json_extract(external_ids, ?) = ? ORDER BY active DESC, created_at",
		`$."`+kind+`"`, value)
}

// UpsertRecord inserts or updates the record's own fields, keyed by id and then by primary id.
// The stored id and sync version are written back to record.
func (s *Store) UpsertRecord(ctx context.Context, record *domain.AnimeRecord) (bool, error) {
	if strings.TrimSpace(record.Title) == "" {
		return false, fmt.Errorf("record title: %w", store.ErrInvalidInput)
	}
	if record.ID == "" {
		rid, err := id.Record()
		if err != nil {
			return false, err
		}
		record.ID = rid
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	others, err := encodeJSON(record.ExternalIDs.Others)
	if err != nil {
		return false, fmt.Errorf("encode external_ids: %w", err)
	}
	altTitles, err := encodeJSON(record.AltTitles)
	if err != nil {
		return false, fmt.Errorf("encode alt_titles: %w", err)
	}
	genres, err := encodeJSON(record.Genres)
	if err != nil {
		return false, fmt.Errorf("encode genres: %w", err)
	}
	studios, err := encodeJSON(record.Studios)
	if err != nil {
		return false, fmt.Errorf("encode studios: %w", err)
	}

	active := 0
	if record.Sync.Active {
		active = 1
	}

	// The update set is shared by both conflict targets. An existing secondary id is never replaced.
	const updateSet = `
		primary_id = COALESCE(anime_records.primary_id, excluded.primary_id),
		secondary_id = COALESCE(anime_records.secondary_id, excluded.secondary_id),
		external_ids = excluded.external_ids,
		title = excluded.title,
		alt_titles = excluded.alt_titles,
		genres = excluded.genres,
		studios = excluded.studios,
		media_type = excluded.media_type,
		episodes = excluded.episodes,
		status = excluded.status,
		year = excluded.year,
		synopsis = excluded.synopsis,
		last_list_sync = COALESCE(excluded.last_list_sync, anime_records.last_list_sync),
		last_library_sync = COALESCE(excluded.last_library_sync, anime_records.last_library_sync),
		library_id = CASE WHEN excluded.library_id = '' THEN anime_records.library_id ELSE excluded.library_id END,
		sync_version = anime_records.sync_version + 1,
		active = excluded.active,
		updated_at = excluded.updated_at`

	var (
		storedID    string
		version     int
		secondaryID sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, `INSERT INTO anime_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET `+updateSet+`
		ON CONFLICT(primary_id) DO UPDATE SET `+updateSet+`
		RETURNING id, sync_version, secondary_id`,
		record.ID, nullableInt(record.PrimaryID), nullableInt(record.ExternalIDs.Secondary), others,
		record.Title, altTitles, genres, studios,
		record.MediaType, record.Episodes, record.Status, record.Year, record.Synopsis,
		nullTimeString(record.Sync.LastListSync), nullTimeString(record.Sync.LastLibrarySync),
		record.Sync.LibraryID, active, formatTime(record.CreatedAt), formatTime(record.UpdatedAt),
	).Scan(&storedID, &version, &secondaryID)
	if err != nil {
		return false, fmt.Errorf("upsert record: %w", err)
	}

	record.ID = storedID
	record.Sync.Version = version
	record.ExternalIDs.Secondary = intPtr(secondaryID)

	if err := s.indexer.IndexRecord(ctx, record); err != nil {
		s.logger.Warn("failed to index record", "record_id", record.ID, "error", err)
	}

	return version == 1, nil
}

// UpsertUserStatus merges update into the (record, user) row.
func (s *Store) UpsertUserStatus(ctx context.Context, recordID, userID string, update domain.UserStatusUpdate) (*domain.UserListStatus, bool, error) {
	if recordID == "" || userID == "" {
		return nil, false, store.ErrInvalidInput
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, false, fmt.Errorf("status %q: %w", *update.Status, store.ErrInvalidInput)
	}

	var (
		out     *domain.UserListStatus
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM anime_records WHERE id = ?`, recordID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("check record: %w", err)
		}

		row := tx.QueryRowContext(ctx,
			`SELECT `+userStatusColumns+` FROM user_list_status WHERE record_id = ? AND user_id = ?`,
			recordID, userID)
		current, err := scanUserStatus(row)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
			current = &domain.UserListStatus{UserID: userID, Status: domain.ListStatusPlanToWatch}
		case err != nil:
			return fmt.Errorf("get user status: %w", err)
		}

		update.ApplyTo(current)
		current.UpdatedAt = time.Now()

		tags, err := encodeJSON(current.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		rewatching := 0
		if current.IsRewatching {
			rewatching = 1
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO user_list_status (record_id, `+userStatusColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(record_id, user_id) DO UPDATE SET
				status = excluded.status,
				score = excluded.score,
				episodes_watched = excluded.episodes_watched,
				is_rewatching = excluded.is_rewatching,
				rewatch_count = excluded.rewatch_count,
				tags = excluded.tags,
				comment = excluded.comment,
				updated_at = excluded.updated_at`,
			recordID, current.UserID, string(current.Status), current.Score, current.EpisodesWatched,
			rewatching, current.RewatchCount, tags, current.Comment, formatTime(current.UpdatedAt))
		if err != nil {
			return fmt.Errorf("upsert user status: %w", err)
		}

		out = current
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// RemoveUserStatus deletes the (record, user) row.
func (s *Store) RemoveUserStatus(ctx context.Context, recordID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_list_status WHERE record_id = ? AND user_id = ?`, recordID, userID)
	if err != nil {
		return fmt.Errorf("delete user status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrUserStatusNotFound
	}
	return nil
}

// ListRecords returns records ordered by creation, with their user statuses.
func (s *Store) ListRecords(ctx context.Context, offset, limit int) ([]*domain.AnimeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM anime_records ORDER BY created_at, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var out []*domain.AnimeRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the only connection before loading users.
	rows.Close()

	for _, r := range out {
		if err := loadUsers(ctx, s.db, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountRecords returns the number of stored records.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anime_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
