package sse

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shirosync/shirosync-server/internal/progress"
)

// SessionGetter loads the current snapshot of a session.
type SessionGetter interface {
	Get(ctx context.Context, sessionID string) (*progress.Session, error)
}

// Handler handles SSE connections at GET /api/v1/sync/events.
// Optional query parameters user_id and session_id narrow the stream.
type Handler struct {
	manager  *Manager
	sessions SessionGetter
	logger   *slog.Logger
}

// NewHandler creates a new SSE Handler. sessions may be nil.
func NewHandler(manager *Manager, sessions SessionGetter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager:  manager,
		sessions: sessions,
		logger:   logger,
	}
}

// ServeHTTP handles the SSE connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept GET requests.
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Client may have gone away before we got here.
	if r.Context().Err() != nil {
		return
	}

	// Empty filters match everything.
	userID := r.URL.Query().Get("user_id")
	sessionID := r.URL.Query().Get("session_id")

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)

	// Flush headers immediately.
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Register subscriber.
	sub, err := h.manager.Subscribe(Filter{UserID: userID, SessionID: sessionID})
	if err != nil {
		h.logger.Error("failed to register SSE subscriber", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Unsubscribe(sub.ID)

	clientLogger := h.logger.With(slog.String("subscriber_id", sub.ID))

	// Send initial connection message.
	if err := h.sendEvent(w, rc, "connected", map[string]string{
		"subscriber_id": sub.ID,
		"message":       "SSE connection established",
	}); err != nil {
		clientLogger.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	// A client following one session gets its current state first, so a late
	// subscriber to a finished run still sees the outcome.
	if sessionID != "" && h.sessions != nil {
		if s, err := h.sessions.Get(r.Context(), sessionID); err == nil {
			snapshot := NewSessionEvent(*s)
			if err := h.sendEvent(w, rc, string(snapshot.Type), snapshot); err != nil {
				return
			}
			if snapshot.Terminal() {
				return
			}
		}
	}

	// Heartbeats arrive through the manager like any other event.
	ctx := r.Context()
	for {
		select {
		case event := <-sub.Events():
			if err := h.sendEvent(w, rc, string(event.Type), event); err != nil {
				// Client disconnect is normal, not an error condition.
				clientLogger.Debug("subscriber gone during send", slog.String("error", err.Error()))
				return
			}
			if event.Terminal() && sessionID != "" {
				// A stream following one session ends with its outcome.
				return
			}

		case <-sub.Done():
			// Manager closed this subscriber (server shutdown).
			clientLogger.Debug("subscriber closed by manager")
			return

		case <-ctx.Done():
			// Client disconnected.
			return
		}
	}
}

// sendEvent writes one SSE frame and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	// Write SSE format:
	// event: <type>
	// data: <json>
	// (blank line)
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}

	// Flush immediately so the client receives the event.
	if err := rc.Flush(); err != nil {
		return err
	}

	// Reset the write deadline after each successful write. Not every ResponseWriter supports deadlines.
	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}

	return nil
}
