package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/logger"
	"github.com/shirosync/shirosync-server/internal/search"
)

// SearchIndexHandle wraps the title index with shutdown capability.
type SearchIndexHandle struct {
	*search.TitleIndex
	needsReindex bool
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve title index and wires it to record writes.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	index, needsReindex, err := search.NewTitleIndex(search.Options{
		DataPath: cfg.Data.BasePath,
		Logger:   log.ForComponent("search"),
	})
	if err != nil {
		return nil, err
	}

	// Every record upsert keeps the index current from here on.
	storeHandle.SetRecordIndexer(index)

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount, "needs_reindex", needsReindex)

	return &SearchIndexHandle{TitleIndex: index, needsReindex: needsReindex}, nil
}

// TriggerSearchReindexIfNeeded rebuilds the index from the record table when it
// was created empty while records already exist.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx := context.Background()
	docCount, _ := indexHandle.DocumentCount()
	if !indexHandle.needsReindex && docCount > 0 {
		return
	}

	records, err := storeHandle.CountRecords(ctx)
	if err != nil || records == 0 {
		return
	}

	log.Info("Search index is empty but records exist, triggering reindex", "record_count", records)

	go func() {
		n, err := indexHandle.Reindex(context.Background(), storeHandle.Store)
		if err != nil {
			log.Error("Search reindex failed", "error", err)
			return
		}
		log.Info("Search reindex completed", "documents", n)
	}()
}
