package mapping

import (
	"context"
	"encoding/json/jsontext"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/events"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/store"
)

// DefaultBatchSize is how many complete mappings are written per transaction.
const DefaultBatchSize = 100

// DatasetFetcher opens a dataset document.
type DatasetFetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// Importer scans a dataset and upserts every entry that carries both ids.
type Importer struct {
	mappings  store.MappingStore
	statuses  store.ImportStatusStore
	tracker   *progress.Tracker
	publisher events.Publisher
	patterns  Patterns
	batchSize int
	clock     func() time.Time
	logger    *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithPatterns overrides the identifier patterns.
func WithPatterns(p Patterns) Option {
	return func(i *Importer) { i.patterns = p }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithTracker reports per-entry progress to sessions.
func WithTracker(t *progress.Tracker) Option {
	return func(i *Importer) { i.tracker = t }
}

// WithPublisher announces finished imports.
func WithPublisher(p events.Publisher) Option {
	return func(i *Importer) { i.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) { i.logger = l }
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(i *Importer) { i.clock = clock }
}

// NewImporter creates an importer.
func NewImporter(mappings store.MappingStore, statuses store.ImportStatusStore, opts ...Option) *Importer {
	i := &Importer{
		mappings:  mappings,
		statuses:  statuses,
		publisher: events.Noop{},
		patterns:  DefaultPatterns(),
		batchSize: DefaultBatchSize,
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run describes one import invocation.
type Run struct {
	DatasetID string
	// SessionID is an existing progress session to report into. Optional.
	SessionID string
}

// Import parses r and writes its mappings. The import status for the dataset moves
// to in_progress, then success or failed. Per-entry problems are counted, not returned;
// only unreadable documents and cancellation fail the import.
func (i *Importer) Import(ctx context.Context, run Run, r io.Reader) (*domain.ImportStats, error) {
	log := i.logger.With("dataset_id", run.DatasetID)
	stats := &domain.ImportStats{}

	i.saveStatus(ctx, run.DatasetID, domain.ImportStateInProgress, "", stats, 0)

	dataset, err := Parse(r)
	if err != nil {
		log.Error("dataset parse failed", "error", err)
		i.saveStatus(ctx, run.DatasetID, domain.ImportStateFailed, err.Error(), stats, 0)
		i.failSession(ctx, run.SessionID, err.Error())
		return nil, err
	}

	total := len(dataset.Entries)
	if run.SessionID != "" && i.tracker != nil {
		if _, err := i.tracker.SetTotal(ctx, run.SessionID, total); err != nil {
			log.Warn("progress session unavailable", "session_id", run.SessionID, "error", err)
		}
	}
	log.Info("dataset import started", "entries", total, "last_update", dataset.LastUpdate)

	batch := make([]domain.MappingEntry, 0, i.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := i.mappings.UpsertBatch(ctx, batch); err != nil {
			stats.BatchFailures += len(batch)
			log.Error("mapping batch failed", "size", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for n, raw := range dataset.Entries {
		if err := ctx.Err(); err != nil {
			flush()
			i.saveStatus(ctx, run.DatasetID, domain.ImportStateFailed, "import cancelled", stats, total)
			i.failSession(ctx, run.SessionID, "import cancelled")
			return stats, err
		}

		stats.Processed++
		entry, outcome, label := i.processEntry(raw, stats)
		if entry != nil {
			batch = append(batch, *entry)
			if len(batch) >= i.batchSize {
				flush()
			}
		}
		// The last item completes the session, so everything must be written first.
		if n == total-1 {
			flush()
		}
		i.recordItem(ctx, run.SessionID, label, outcome)
	}
	flush()

	i.saveStatus(ctx, run.DatasetID, domain.ImportStateSuccess, "", stats, total)
	if run.SessionID != "" && i.tracker != nil {
		msg := fmt.Sprintf("imported %d of %d entries", stats.Complete-stats.BatchFailures, total)
		if _, err := i.tracker.Complete(ctx, run.SessionID, msg); err != nil {
			log.Warn("progress session unavailable", "session_id", run.SessionID, "error", err)
		}
	}

	log.Info("dataset import finished",
		"processed", stats.Processed,
		"complete", stats.Complete,
		"errors", stats.Errors,
		"batch_failures", stats.BatchFailures)

	e := events.New(events.TypeImportFinished, map[string]any{"datasetId": run.DatasetID, "stats": stats})
	e.SessionID = run.SessionID
	if err := i.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Warn("import event not published", "error", err)
	}
	return stats, nil
}

// ImportFrom fetches the dataset and imports it.
func (i *Importer) ImportFrom(ctx context.Context, run Run, fetcher DatasetFetcher) (*domain.ImportStats, error) {
	rc, err := fetcher.Fetch(ctx)
	if err != nil {
		i.saveStatus(ctx, run.DatasetID, domain.ImportStateFailed, err.Error(), &domain.ImportStats{}, 0)
		i.failSession(ctx, run.SessionID, err.Error())
		return nil, err
	}
	defer rc.Close()
	return i.Import(ctx, run, rc)
}

// processEntry converts one raw entry. A panic inside is counted as an entry error.
func (i *Importer) processEntry(raw jsontext.Value, stats *domain.ImportStats) (entry *domain.MappingEntry, outcome progress.Outcome, label string) {
	defer func() {
		if r := recover(); r != nil {
			stats.Errors++
			entry, outcome = nil, progress.OutcomeError
			i.logger.Error("dataset entry panicked", "panic", r)
		}
	}()

	e, err := DecodeEntry(raw)
	if err != nil {
		stats.Errors++
		i.logger.Debug("dataset entry skipped", "error", err)
		return nil, progress.OutcomeError, ""
	}

	primary, secondary, okPrimary, okSecondary := ExtractIDs(e.IDs(), i.patterns)
	if okPrimary {
		stats.WithPrimaryID++
	}
	if okSecondary {
		stats.WithSecondaryID++
	}
	if !okPrimary || !okSecondary {
		return nil, progress.OutcomeSkipped, e.Title
	}
	stats.Complete++

	return &domain.MappingEntry{
		PrimaryID:   primary,
		SecondaryID: secondary,
		Title:       strings.Join(strings.Fields(e.Title), " "),
		Source:      domain.MappingSourceImported,
		Metadata: domain.MappingMetadata{
			Synonyms: e.Synonyms,
			Type:     e.Type,
			Episodes: e.Episodes,
			Status:   e.Status,
			Year:     e.AnimeSeason.Year,
		},
	}, progress.OutcomeAdded, e.Title
}

func (i *Importer) saveStatus(ctx context.Context, datasetID string, state domain.ImportState, msg string, stats *domain.ImportStats, total int) {
	status := &domain.ImportStatus{
		DatasetID:    datasetID,
		Status:       state,
		LastUpdated:  i.clock().UTC(),
		ErrorMessage: msg,
		Statistics:   *stats,
		TotalEntries: total,
	}
	// Status writes must land even when the import itself was cancelled.
	if err := i.statuses.UpsertImportStatus(context.WithoutCancel(ctx), status); err != nil {
		i.logger.Error("import status write failed", "dataset_id", datasetID, "status", state, "error", err)
	}
}

func (i *Importer) recordItem(ctx context.Context, sessionID, label string, outcome progress.Outcome) {
	if sessionID == "" || i.tracker == nil {
		return
	}
	if _, err := i.tracker.RecordItem(ctx, sessionID, label, outcome); err != nil {
		i.logger.Debug("progress update failed", "session_id", sessionID, "error", err)
	}
}

func (i *Importer) failSession(ctx context.Context, sessionID, msg string) {
	if sessionID == "" || i.tracker == nil {
		return
	}
	if _, err := i.tracker.Fail(context.WithoutCancel(ctx), sessionID, msg); err != nil {
		i.logger.Debug("progress update failed", "session_id", sessionID, "error", err)
	}
}
