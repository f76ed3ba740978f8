package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
)

// ReimportFunc runs one dataset import.
type ReimportFunc func(ctx context.Context) error

// DatasetWatcher re-imports the mapping dataset whenever its file settles after a change.
type DatasetWatcher struct {
	path     string
	reimport ReimportFunc
	watcher  *Watcher
	logger   *slog.Logger
}

// NewDatasetWatcher creates a watcher for the dataset file at path.
func NewDatasetWatcher(path string, reimport ReimportFunc, logger *slog.Logger, opts Options) (*DatasetWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	opts.Only = []string{filepath.Base(abs)}

	w, err := New(logger, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(abs); err != nil {
		_ = w.Stop()
		return nil, err
	}

	return &DatasetWatcher{
		path:     abs,
		reimport: reimport,
		watcher:  w,
		logger:   logger.With("component", "dataset_watcher", "path", abs),
	}, nil
}

// Run blocks until ctx is done, re-importing on every settled write.
// Imports run one at a time; writes arriving during an import are coalesced.
func (d *DatasetWatcher) Run(ctx context.Context) error {
	go func() { _ = d.watcher.Start(ctx) }()
	defer d.watcher.Stop() //nolint:errcheck // shutdown path

	d.logger.Info("watching dataset file")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-d.watcher.Errors():
			if !ok {
				return nil
			}
			d.logger.Warn("dataset watch error", "error", err)
		case ev, ok := <-d.watcher.Events():
			if !ok {
				return nil
			}
			if ev.Type != EventWritten || filepath.Clean(ev.Path) != d.path {
				continue
			}
			d.drain()
			d.logger.Info("dataset changed, re-importing", "size", ev.Size)
			if err := d.reimport(ctx); err != nil {
				d.logger.Error("dataset re-import failed", "error", err)
			}
		}
	}
}

// drain discards queued events so a burst of writes triggers one import.
func (d *DatasetWatcher) drain() {
	for {
		select {
		case _, ok := <-d.watcher.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}
