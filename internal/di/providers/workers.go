package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/logger"
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/syncer"
	"github.com/shirosync/shirosync-server/internal/watcher"
)

// DatasetWatcherHandle wraps the dataset file watcher with shutdown capability.
type DatasetWatcherHandle struct {
	*watcher.DatasetWatcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable. Run stops the underlying watcher on cancel.
func (h *DatasetWatcherHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideDatasetWatcher re-imports the local dataset file whenever it changes.
func ProvideDatasetWatcher(i do.Injector) (*DatasetWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())
	if !cfg.Dataset.WatchFile {
		return &DatasetWatcherHandle{cancel: cancel}, nil
	}

	runner := do.MustInvoke[*RunnerHandle](i)
	importer := do.MustInvoke[*mapping.Importer](i)
	fetcher := do.MustInvoke[*DatasetFetcher](i)

	reimport := func(ctx context.Context) error {
		_, err := runner.Start(ctx, progress.KindImport, "", func(ctx context.Context, sessionID string) (string, error) {
			stats, err := importer.ImportFrom(ctx, mapping.Run{DatasetID: fetcher.ID, SessionID: sessionID}, fetcher.DatasetFetcher)
			if err != nil {
				return "", err
			}
			return stats.Summary(), nil
		})
		return err
	}

	dw, err := watcher.NewDatasetWatcher(cfg.Dataset.File, reimport, log.ForComponent("watcher"), watcher.Options{})
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		if err := dw.Run(ctx); err != nil {
			log.Error("Dataset watcher stopped", "error", err)
		}
	}()

	log.Info("Watching dataset file", "path", cfg.Dataset.File)
	return &DatasetWatcherHandle{DatasetWatcher: dw, cancel: cancel}, nil
}

// SchedulerJob runs scheduled multi-user batches.
type SchedulerJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *SchedulerJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideSchedulerJob starts the batch ticker when scheduled users are configured.
func ProvideSchedulerJob(i do.Injector) (*SchedulerJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	scheduler := do.MustInvoke[*syncer.Scheduler](i)
	orch := do.MustInvoke[*syncer.Orchestrator](i)

	ctx, cancel := context.WithCancel(context.Background())

	kinds := []progress.Kind{progress.KindList}
	if orch.HasLibrary() {
		kinds = append(kinds, progress.KindLibrary)
	}
	scheduler.Start(ctx, cfg.Sync.ScheduleInterval, cfg.Sync.ScheduledUsers, kinds)

	if cfg.Sync.ScheduleInterval > 0 && len(cfg.Sync.ScheduledUsers) > 0 {
		log.Info("Scheduled sync enabled",
			"interval", cfg.Sync.ScheduleInterval,
			"users", len(cfg.Sync.ScheduledUsers),
		)
	}

	return &SchedulerJob{cancel: cancel}, nil
}
