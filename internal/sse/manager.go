package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirosync/shirosync-server/internal/id"
	"github.com/shirosync/shirosync-server/internal/progress"
)

const (
	queueSize        = 1000
	subscriberBuffer = 100
	heartbeatEvery   = 30 * time.Second
)

// Filter narrows what a subscriber receives. Empty fields match everything.
type Filter struct {
	UserID    string
	SessionID string
}

func (f Filter) matches(e Event) bool {
	if e.Type == EventHeartbeat {
		return true
	}
	if f.UserID != "" && e.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if f.SessionID != "" && e.SessionID != "" && f.SessionID != e.SessionID {
		return false
	}
	return true
}

// Subscriber is one open event stream.
type Subscriber struct {
	ID          string
	Filter      Filter
	ConnectedAt time.Time

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Events yields the subscriber's queued events.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Done is closed when the manager drops the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// deliver queues e without blocking. Progress snapshots are dropped for a full
// buffer; a terminal snapshot evicts the oldest queued event instead, so every
// subscriber learns how a session ended.
func (s *Subscriber) deliver(e Event) bool {
	select {
	case s.events <- e:
		return true
	default:
	}
	if !e.Terminal() {
		return false
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// Manager fans session snapshots out to subscribers.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	// queueMu guards closed; Emit holds it for reading across the send.
	queueMu sync.RWMutex
	queue   chan Event
	closed  bool

	heartbeat time.Duration
	running   sync.WaitGroup
	logger    *slog.Logger
}

// NewManager creates a manager. Call Run to start delivery.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		subscribers: make(map[string]*Subscriber),
		queue:       make(chan Event, queueSize),
		heartbeat:   heartbeatEvery,
		logger:      logger,
	}
}

// Attach forwards every session change of tracker to subscribers.
// The returned function detaches.
func (m *Manager) Attach(tracker *progress.Tracker) func() {
	return tracker.Subscribe(func(s progress.Session) {
		m.Emit(NewSessionEvent(s))
	})
}

// Run delivers queued events and heartbeats until ctx is done or the manager shuts down.
func (m *Manager) Run(ctx context.Context) {
	m.running.Add(1)
	defer m.running.Done()

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-m.queue:
			if !ok {
				return
			}
			m.broadcast(e)
		case <-ticker.C:
			m.broadcast(NewHeartbeatEvent())
		case <-ctx.Done():
			m.dropAll()
			return
		}
	}
}

// Emit queues an event. It never blocks; a full queue drops the event.
func (m *Manager) Emit(e Event) {
	m.queueMu.RLock()
	defer m.queueMu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- e:
	default:
		m.logger.Error("sse queue full, dropping event", "event_type", string(e.Type), "session_id", e.SessionID)
	}
}

// Subscribe registers a stream for events matching f.
func (m *Manager) Subscribe(f Filter) (*Subscriber, error) {
	subID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}
	sub := &Subscriber{
		ID:          subID,
		Filter:      f,
		ConnectedAt: time.Now(),
		events:      make(chan Event, subscriberBuffer),
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	m.subscribers[sub.ID] = sub
	total := len(m.subscribers)
	m.mu.Unlock()

	m.logger.Info("sse subscriber connected",
		"subscriber_id", sub.ID,
		"user_id", f.UserID,
		"session_id", f.SessionID,
		"total", total,
	)
	return sub, nil
}

// Unsubscribe removes a stream. Unknown ids are ignored.
func (m *Manager) Unsubscribe(subID string) {
	m.mu.Lock()
	sub, ok := m.subscribers[subID]
	delete(m.subscribers, subID)
	total := len(m.subscribers)
	m.mu.Unlock()
	if !ok {
		return
	}

	sub.close()
	m.logger.Info("sse subscriber disconnected",
		"subscriber_id", subID,
		"connected_for", time.Since(sub.ConnectedAt),
		"total", total,
	)
}

// SubscriberCount returns the number of open streams.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Shutdown stops accepting events, delivers what is queued until ctx expires,
// and closes every stream.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.queueMu.Lock()
	if m.closed {
		m.queueMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.queueMu.Unlock()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range m.queue {
			m.broadcast(e)
		}
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("sse drain timed out, queued events lost")
	}

	m.running.Wait()
	m.dropAll()
	return nil
}

func (m *Manager) broadcast(e Event) {
	var delivered, dropped int

	m.mu.RLock()
	for _, sub := range m.subscribers {
		if !sub.Filter.matches(e) {
			continue
		}
		if sub.deliver(e) {
			delivered++
		} else {
			dropped++
		}
	}
	m.mu.RUnlock()

	if dropped > 0 {
		m.logger.Warn("sse events dropped for slow subscribers",
			"event_type", string(e.Type),
			"session_id", e.SessionID,
			"dropped", dropped,
		)
	}
	if e.Type != EventHeartbeat {
		m.logger.Debug("sse event delivered", "event_type", string(e.Type), "session_id", e.SessionID, "delivered", delivered)
	}
}

func (m *Manager) dropAll() {
	m.mu.Lock()
	subs := m.subscribers
	m.subscribers = make(map[string]*Subscriber)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
