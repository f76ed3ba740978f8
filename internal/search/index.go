package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

// TitleIndex wraps a Bleve index of record titles.
//
// All public methods are safe for concurrent use. The mutex guards the index
// handle during Rebuild.
type TitleIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

var _ store.RecordIndexer = (*TitleIndex)(nil)

// Options configures the title index.
type Options struct {
	DataPath string
	Logger   *slog.Logger
}

// mappingVersion is bumped whenever buildIndexMapping changes; a mismatch triggers a rebuild.
const mappingVersion = "1"

const batchSize = 500

// NewTitleIndex opens the index under DataPath, recreating it when it is
// missing, corrupt or built with an older mapping. The returned bool reports
// whether the index was created empty and needs a Reindex.
func NewTitleIndex(opts Options) (*TitleIndex, bool, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	indexPath := filepath.Join(opts.DataPath, "titles.bleve")
	versionPath := filepath.Join(opts.DataPath, "titles.version")

	var (
		index        bleve.Index
		err          error
		needsRebuild bool
		indexExists  bool
	)

	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existing, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil:
			logger.Info("title index has no version file, rebuilding", "new_version", mappingVersion)
			needsRebuild = true
		case string(existing) != mappingVersion:
			logger.Info("title index mapping version changed, rebuilding",
				"old_version", string(existing),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if indexExists && !needsRebuild {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open title index, recreating", "path", indexPath, "error", err)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, false, fmt.Errorf("remove old index: %w", err)
		}
		index = nil
	}

	created := false
	if index == nil {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, false, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write title index version file", "error", err)
		}
		created = true
		logger.Info("created title index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened title index", "path", indexPath)
	}

	return &TitleIndex{index: index, path: indexPath, logger: logger}, created, nil
}

// Close releases the index.
func (t *TitleIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index.Close()
}

// IndexRecord adds or replaces a single record.
func (t *TitleIndex) IndexRecord(_ context.Context, r *domain.AnimeRecord) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc := NewRecordDocument(r)
	return t.index.Index(doc.ID, doc.ToMap())
}

// IndexRecords indexes records in batches.
func (t *TitleIndex) IndexRecords(records []*domain.AnimeRecord) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))

		batch := t.index.NewBatch()
		for _, r := range records[i:end] {
			doc := NewRecordDocument(r)
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := t.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// DeleteRecord removes a record from the index.
func (t *TitleIndex) DeleteRecord(id string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.index.Delete(id)
}

// DocumentCount returns the number of indexed records.
func (t *TitleIndex) DocumentCount() (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.index.DocCount()
}

// Rebuild drops the index and creates an empty one. It blocks all other operations.
func (t *TitleIndex) Rebuild() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.RemoveAll(t.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	index, err := bleve.New(t.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	t.index = index
	t.logger.Info("rebuilt title index", "path", t.path)
	return nil
}

// RecordLister pages through stored records.
type RecordLister interface {
	ListRecords(ctx context.Context, offset, limit int) ([]*domain.AnimeRecord, error)
}

// Reindex feeds every stored record into the index and returns how many were indexed.
func (t *TitleIndex) Reindex(ctx context.Context, records RecordLister) (int, error) {
	total := 0
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := records.ListRecords(ctx, offset, batchSize)
		if err != nil {
			return total, fmt.Errorf("list records: %w", err)
		}
		if len(page) == 0 {
			break
		}
		if err := t.IndexRecords(page); err != nil {
			return total, err
		}
		total += len(page)
		if len(page) < batchSize {
			break
		}
	}
	t.logger.Info("reindexed records", "count", total)
	return total, nil
}
