// Package sse pushes sync progress snapshots to connected clients as Server-Sent Events.
package sse

import (
	"time"

	"github.com/shirosync/shirosync-server/internal/progress"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventSessionProgress is sent on every counter change of a running session.
	EventSessionProgress EventType = "session.progress"
	// EventSessionCompleted is sent once when a session completes.
	EventSessionCompleted EventType = "session.completed"
	// EventSessionFailed is sent once when a session fails or is cancelled.
	EventSessionFailed EventType = "session.failed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Routing fields, not serialized. Empty means every client.
	UserID    string `json:"-"`
	SessionID string `json:"-"`
}

// NewSessionEvent wraps a progress snapshot.
func NewSessionEvent(s progress.Session) Event {
	t := EventSessionProgress
	switch s.Status {
	case progress.StatusCompleted:
		t = EventSessionCompleted
	case progress.StatusFailed:
		t = EventSessionFailed
	}
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      s,
		UserID:    s.UserID,
		SessionID: s.ID,
	}
}

// Terminal reports whether e carries the final snapshot of a session.
func (e Event) Terminal() bool {
	return e.Type == EventSessionCompleted || e.Type == EventSessionFailed
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
		Data:      map[string]any{},
	}
}
