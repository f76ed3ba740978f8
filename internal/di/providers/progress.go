package providers

import (
	"context"
	"io"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/logger"
	"github.com/shirosync/shirosync-server/internal/progress"
)

// TrackerHandle wraps the progress tracker and its session store.
type TrackerHandle struct {
	*progress.Tracker
	closer io.Closer
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *TrackerHandle) Shutdown() error {
	h.cancel()
	if h.closer != nil {
		return h.closer.Close()
	}
	return nil
}

// ProvideTracker provides the progress tracker on the configured backend.
func ProvideTracker(i do.Injector) (*TrackerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var (
		sessions progress.SessionStore
		closer   io.Closer
	)
	switch cfg.Progress.Backend {
	case "badger":
		path := filepath.Join(cfg.Data.BasePath, "sessions")
		b, err := progress.OpenBadgerStore(path, cfg.Progress.IdleTTL, log.ForComponent("progress"))
		if err != nil {
			return nil, err
		}
		sessions, closer = b, b
	case "redis":
		r, err := progress.NewRedisStore(context.Background(), progress.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Progress.IdleTTL,
		}, log.ForComponent("progress"))
		if err != nil {
			return nil, err
		}
		sessions, closer = r, r
	default:
		sessions = progress.NewMemoryStore()
	}

	tracker := progress.NewTracker(sessions,
		progress.WithIdleTTL(cfg.Progress.IdleTTL),
		progress.WithLogger(log.ForComponent("progress")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	tracker.StartSweeper(ctx, cfg.Progress.SweepInterval)

	log.Info("Progress tracker started", "backend", cfg.Progress.Backend, "idle_ttl", cfg.Progress.IdleTTL)
	return &TrackerHandle{Tracker: tracker, closer: closer, cancel: cancel}, nil
}
