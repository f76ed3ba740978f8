package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirosync/shirosync-server/internal/id"
)

// DefaultIdleTTL is how long an untouched session survives before Sweep reaps it.
const DefaultIdleTTL = time.Hour

// Listener receives a snapshot after every session change.
type Listener func(Session)

// Tracker owns the session table. Updates to one session are serialized;
// different sessions proceed independently.
type Tracker struct {
	store   SessionStore
	clock   func() time.Time
	idleTTL time.Duration
	logger  *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithIdleTTL sets the inactivity window used by Sweep.
func WithIdleTTL(ttl time.Duration) Option {
	return func(t *Tracker) { t.idleTTL = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates a tracker over store. A nil store uses a MemoryStore.
func NewTracker(store SessionStore, opts ...Option) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	t := &Tracker{
		store:     store,
		clock:     time.Now,
		idleTTL:   DefaultIdleTTL,
		logger:    slog.Default(),
		locks:     make(map[string]*sync.Mutex),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create starts a new session in the started state.
func (t *Tracker) Create(ctx context.Context, kind Kind, userID string, total int) (*Session, error) {
	sid, err := id.Session()
	if err != nil {
		return nil, err
	}

	now := t.clock()
	s := Session{
		ID:         sid,
		Type:       kind,
		UserID:     userID,
		TotalItems: max(total, 0),
		Status:     StatusStarted,
		StartTime:  now,
		LastUpdate: now,
	}
	if err := t.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	t.logger.Debug("sync session created", "session_id", sid, "type", kind, "user_id", userID)
	t.notify(s)
	return &s, nil
}

// Get returns the current snapshot.
func (t *Tracker) Get(ctx context.Context, sessionID string) (*Session, error) {
	return t.store.Load(ctx, sessionID)
}

// List returns every live session ordered by start time.
func (t *Tracker) List(ctx context.Context) ([]Session, error) {
	return t.store.List(ctx)
}

// SetTotal sets the expected item count.
func (t *Tracker) SetTotal(ctx context.Context, sessionID string, total int) (*Session, error) {
	return t.update(ctx, sessionID, func(s *Session) {
		s.TotalItems = max(total, 0)
	})
}

// RecordItem counts one processed item.
func (t *Tracker) RecordItem(ctx context.Context, sessionID, label string, outcome Outcome) (*Session, error) {
	return t.update(ctx, sessionID, func(s *Session) {
		s.record(label, outcome)
	})
}

// SetMessage replaces the human-readable status line.
func (t *Tracker) SetMessage(ctx context.Context, sessionID, msg string) (*Session, error) {
	return t.update(ctx, sessionID, func(s *Session) {
		s.Message = msg
	})
}

// Complete marks the session completed. Completing a failed session is a no-op.
func (t *Tracker) Complete(ctx context.Context, sessionID, msg string) (*Session, error) {
	return t.update(ctx, sessionID, func(s *Session) {
		if s.Status == StatusFailed {
			return
		}
		if msg != "" {
			s.Message = msg
		}
		s.finish(StatusCompleted, t.clock())
	})
}

// Fail marks the session failed with msg.
func (t *Tracker) Fail(ctx context.Context, sessionID, msg string) (*Session, error) {
	return t.update(ctx, sessionID, func(s *Session) {
		s.Message = msg
		s.finish(StatusFailed, t.clock())
	})
}

// Delete removes a session.
func (t *Tracker) Delete(ctx context.Context, sessionID string) error {
	unlock := t.lock(sessionID)
	defer unlock()

	err := t.store.Delete(ctx, sessionID)
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		t.dropLock(sessionID)
	}
	return err
}

// Sweep deletes sessions idle for longer than the TTL and returns how many were removed.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	sessions, err := t.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	cutoff := t.clock().Add(-t.idleTTL)
	removed := 0
	for _, s := range sessions {
		if !s.LastUpdate.Before(cutoff) {
			continue
		}
		if err := t.Delete(ctx, s.ID); err != nil {
			t.logger.Warn("failed to reap session", "session_id", s.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		t.logger.Info("reaped idle sync sessions", "count", removed)
	}
	return removed, nil
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
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
				if _, err := t.Sweep(ctx); err != nil {
					t.logger.Warn("session sweep failed", "error", err)
				}
			}
		}
	}()
}

// Subscribe registers fn for every change and returns a function that removes it.
// Listeners run synchronously on the updating goroutine and must not block.
func (t *Tracker) Subscribe(fn Listener) func() {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	key := t.nextID
	t.nextID++
	t.listeners[key] = fn
	return func() {
		t.listenersMu.Lock()
		defer t.listenersMu.Unlock()
		delete(t.listeners, key)
	}
}

func (t *Tracker) update(ctx context.Context, sessionID string, fn func(*Session)) (*Session, error) {
	unlock := t.lock(sessionID)
	defer unlock()

	s, err := t.store.Load(ctx, sessionID)
	if err != nil {
		// Unknown or expired ids must not leave a mutex behind.
		if errors.Is(err, ErrSessionNotFound) {
			t.dropLock(sessionID)
		}
		return nil, err
	}

	fn(s)
	s.recompute(t.clock())

	if err := t.store.Save(ctx, *s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	t.notify(*s)
	return s, nil
}

func (t *Tracker) lock(sessionID string) func() {
	t.locksMu.Lock()
	mu, ok := t.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		t.locks[sessionID] = mu
	}
	t.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (t *Tracker) dropLock(sessionID string) {
	t.locksMu.Lock()
	delete(t.locks, sessionID)
	t.locksMu.Unlock()
}

func (t *Tracker) notify(s Session) {
	t.listenersMu.RLock()
	defer t.listenersMu.RUnlock()
	for _, fn := range t.listeners {
		fn(s)
	}
}
