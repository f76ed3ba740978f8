package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shirosync/shirosync-server/internal/events"
	"github.com/shirosync/shirosync-server/internal/progress"
)

// Task is the body of a detached run. It returns a one-line summary.
type Task func(ctx context.Context, sessionID string) (string, error)

// Runner launches tasks detached from the caller. The progress session exists
// before the task starts, so the returned id can be polled immediately.
type Runner struct {
	tracker   *progress.Tracker
	publisher events.Publisher
	logger    *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewRunner creates a runner. publisher may be nil.
func NewRunner(tracker *progress.Tracker, publisher events.Publisher, logger *slog.Logger) *Runner {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		tracker:   tracker,
		publisher: publisher,
		logger:    logger,
		running:   make(map[string]context.CancelFunc),
	}
}

// Start creates a session and runs task in its own goroutine. The task context
// outlives ctx; use Cancel to stop it.
func (r *Runner) Start(ctx context.Context, kind progress.Kind, userID string, task Task) (string, error) {
	session, err := r.tracker.Create(ctx, kind, userID, 0)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.running[session.ID] = cancel
	r.mu.Unlock()

	r.publish(runCtx, events.TypeSyncStarted, session.ID, userID, map[string]string{"kind": string(kind)})

	r.wg.Add(1)
	go r.run(runCtx, cancel, session.ID, userID, task)
	return session.ID, nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, sessionID, userID string, task Task) {
	defer r.wg.Done()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.running, sessionID)
		r.mu.Unlock()
	}()

	log := r.logger.With("session_id", sessionID, "user_id", userID)
	// Results are written with a context that survives cancellation of the task.
	final := context.WithoutCancel(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("run panicked: %v", rec)
			log.Error("sync run panicked", "panic", rec)
			r.fail(final, sessionID, msg)
			r.publish(final, events.TypeSyncFailed, sessionID, userID, map[string]string{"error": msg})
		}
	}()

	summary, err := task(ctx, sessionID)
	switch {
	case err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil:
		log.Info("sync run cancelled")
		r.fail(final, sessionID, "cancelled")
		r.publish(final, events.TypeSyncCancelled, sessionID, userID, nil)
	case err != nil:
		log.Error("sync run failed", "error", err)
		r.fail(final, sessionID, err.Error())
		r.publish(final, events.TypeSyncFailed, sessionID, userID, map[string]string{"error": err.Error()})
	default:
		if _, err := r.tracker.Complete(final, sessionID, summary); err != nil {
			log.Warn("session completion not recorded", "error", err)
		}
		r.publish(final, events.TypeSyncCompleted, sessionID, userID, map[string]string{"summary": summary})
	}
}

func (r *Runner) fail(ctx context.Context, sessionID, msg string) {
	if _, err := r.tracker.Fail(ctx, sessionID, msg); err != nil {
		r.logger.Warn("session failure not recorded", "session_id", sessionID, "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, t events.Type, sessionID, userID string, data any) {
	e := events.New(t, data)
	e.SessionID, e.UserID = sessionID, userID
	if err := r.publisher.Publish(ctx, e); err != nil {
		r.logger.Warn("event publish failed", "type", t, "session_id", sessionID, "error", err)
	}
}

// Cancel asks a running task to stop. It reports whether the session was running.
func (r *Runner) Cancel(sessionID string) bool {
	r.mu.Lock()
	cancel, ok := r.running[sessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether a session's task is still executing.
func (r *Runner) Running(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[sessionID]
	return ok
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels every running task and waits for them, bounded by ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, cancel := range r.running {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListTask adapts SyncList to a Task.
func (o *Orchestrator) ListTask(req ListRequest) Task {
	return func(ctx context.Context, sessionID string) (string, error) {
		req.SessionID = sessionID
		res, err := o.SyncList(ctx, req)
		if err != nil {
			return "", err
		}
		return res.Summary, nil
	}
}

// LibraryTask adapts SyncLibrary to a Task.
func (o *Orchestrator) LibraryTask(req LibraryRequest) Task {
	return func(ctx context.Context, sessionID string) (string, error) {
		req.SessionID = sessionID
		res, err := o.SyncLibrary(ctx, req)
		if err != nil {
			return "", err
		}
		return res.Summary, nil
	}
}
