package providers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/logger"
	"github.com/shirosync/shirosync-server/internal/store/sqlite"
)

// StoreHandle wraps the SQLite store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the mapping and record database.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Data.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.Data.BasePath, "shirosync.db")
	db, err := sqlite.Open(dbPath, log.ForComponent("store"))
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)
	return &StoreHandle{Store: db}, nil
}
