// Package events publishes sync lifecycle and mapping events to external subscribers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names an event. The subject is "<prefix>.<type>".
type Type string

const (
	TypeSyncStarted    Type = "sync.started"
	TypeSyncCompleted  Type = "sync.completed"
	TypeSyncFailed     Type = "sync.failed"
	TypeSyncCancelled  Type = "sync.cancelled"
	TypeImportFinished Type = "import.finished"
	TypeAnomaly        Type = "mapping.anomaly"
)

// Event is the envelope published for every change.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// New creates an event with a fresh id.
func New(t Type, data any) Event {
	return Event{ID: uuid.NewString(), Type: t, Time: time.Now().UTC(), Data: data}
}

// Publisher delivers events. Publishing is best effort; callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
