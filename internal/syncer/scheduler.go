package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirosync/shirosync-server/internal/progress"
)

// DefaultUserPause separates users in a scheduled batch.
const DefaultUserPause = 2 * time.Second

// BatchItem is the outcome of one (user, kind) pair in a batch.
type BatchItem struct {
	UserID string
	Kind   progress.Kind
	Result *Result
	Err    error
}

// Scheduler runs multi-user batches sequentially with a fixed pause between users.
type Scheduler struct {
	orch     *Orchestrator
	runner   *Runner
	progress *progress.Tracker
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a scheduler.
func NewScheduler(orch *Orchestrator, runner *Runner, tracker *progress.Tracker, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{orch: orch, runner: runner, progress: tracker, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunBatch syncs each user in order. One user's failure does not stop the batch.
// When sessionID is set each (user, kind) pair is reported as one item.
func (s *Scheduler) RunBatch(ctx context.Context, sessionID string, users []string, kinds []progress.Kind) ([]BatchItem, error) {
	if sessionID != "" && s.progress != nil {
		if _, err := s.progress.SetTotal(ctx, sessionID, len(users)*len(kinds)); err != nil {
			s.logger.Debug("progress update failed", "session_id", sessionID, "error", err)
		}
	}

	var items []BatchItem
	for i, user := range users {
		if i > 0 {
			if err := s.sleep(ctx, s.orch.opts.UserPause); err != nil {
				return items, err
			}
		}
		for _, kind := range kinds {
			item := BatchItem{UserID: user, Kind: kind}
			switch kind {
			case progress.KindList:
				item.Result, item.Err = s.orch.SyncList(ctx, ListRequest{UserID: user})
			case progress.KindLibrary:
				item.Result, item.Err = s.orch.SyncLibrary(ctx, LibraryRequest{UserID: user})
			default:
				item.Err = fmt.Errorf("unsupported batch kind %q", kind)
			}
			if ctx.Err() != nil {
				return items, ctx.Err()
			}

			outcome := progress.OutcomeUpdated
			if item.Err != nil {
				outcome = progress.OutcomeError
				s.logger.Warn("scheduled sync failed", "user_id", user, "kind", kind, "error", item.Err)
			}
			if sessionID != "" && s.progress != nil {
				if _, err := s.progress.RecordItem(ctx, sessionID, user+"/"+string(kind), outcome); err != nil {
					s.logger.Debug("progress update failed", "session_id", sessionID, "error", err)
				}
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// BatchTask adapts RunBatch to a Task.
func (s *Scheduler) BatchTask(users []string, kinds []progress.Kind) Task {
	return func(ctx context.Context, sessionID string) (string, error) {
		items, err := s.RunBatch(ctx, sessionID, users, kinds)
		if err != nil {
			return "", err
		}
		failed := 0
		for _, it := range items {
			if it.Err != nil {
				failed++
			}
		}
		return fmt.Sprintf("scheduled batch: %d runs, %d failed", len(items), failed), nil
	}
}

// Start launches a batch through the runner on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, users []string, kinds []progress.Kind) {
	if interval <= 0 || len(users) == 0 || len(kinds) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				id, err := s.runner.Start(ctx, progress.KindScheduled, "", s.BatchTask(users, kinds))
				if err != nil {
					s.logger.Error("scheduled batch not started", "error", err)
					continue
				}
				s.logger.Info("scheduled batch started", "session_id", id, "users", len(users))
			}
		}
	}()
}
