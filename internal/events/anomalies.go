package events

import (
	"context"
	"log/slog"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

// AnomalyRecorder persists mapping divergences and announces them.
type AnomalyRecorder struct {
	store     store.AnomalyStore
	publisher Publisher
	logger    *slog.Logger
}

// NewAnomalyRecorder creates a recorder. publisher may be nil.
func NewAnomalyRecorder(s store.AnomalyStore, publisher Publisher, logger *slog.Logger) *AnomalyRecorder {
	if publisher == nil {
		publisher = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnomalyRecorder{store: s, publisher: publisher, logger: logger}
}

// RecordAnomaly stores the anomaly, then publishes it. A publish failure is only logged.
func (r *AnomalyRecorder) RecordAnomaly(ctx context.Context, anomaly *domain.MatchAnomaly) error {
	if err := r.store.RecordAnomaly(ctx, anomaly); err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, New(TypeAnomaly, anomaly)); err != nil {
		r.logger.Warn("anomaly publish failed", "primary_id", anomaly.PrimaryID, "error", err)
	}
	return nil
}
