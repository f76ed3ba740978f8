package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
)

// RecordAnomaly appends a divergence between external mapping sources.
func (s *Store) RecordAnomaly(ctx context.Context, anomaly *domain.MatchAnomaly) error {
	if anomaly.DetectedAt.IsZero() {
		anomaly.DetectedAt = time.Now()
	}
	candidates, err := encodeJSON(anomaly.Candidates)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `INSERT INTO match_anomalies
			(primary_id, chosen, chosen_source, candidates, detected_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
		anomaly.PrimaryID, anomaly.Chosen, anomaly.ChosenSource, candidates, formatTime(anomaly.DetectedAt),
	).Scan(&anomaly.ID)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

// ListAnomalies returns the most recent anomalies first.
func (s *Store) ListAnomalies(ctx context.Context, limit int) ([]domain.MatchAnomaly, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, primary_id, chosen, chosen_source, candidates, detected_at
		FROM match_anomalies ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var out []domain.MatchAnomaly
	for rows.Next() {
		var (
			a          domain.MatchAnomaly
			candidates string
			detectedAt string
		)
		if err := rows.Scan(&a.ID, &a.PrimaryID, &a.Chosen, &a.ChosenSource, &candidates, &detectedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		if err := decodeJSON(candidates, &a.Candidates); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
		if a.DetectedAt, err = parseTime(detectedAt); err != nil {
			return nil, fmt.Errorf("parse detected_at: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
