package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/syncer"
)

func TestStartListSync_RunsInBackground(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/sync/list", map[string]any{
		"user_id":  "alice",
		"statuses": []string{"Watching"},
	})
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	started := decodeEnvelope[SessionStartedResponse](t, resp.Body.Bytes())
	require.NotEmpty(t, started.Data.SessionID)

	ts.runner.Wait()

	resp = ts.api.Get("/api/v1/sync/sessions/" + started.Data.SessionID)
	require.Equal(t, http.StatusOK, resp.Code)

	session := decodeEnvelope[progress.Session](t, resp.Body.Bytes()).Data
	assert.Equal(t, progress.StatusCompleted, session.Status)
	assert.Equal(t, progress.KindList, session.Type)
	assert.Equal(t, 1, session.AddedEntries)

	record, err := ts.store.FindRecordByPrimary(context.Background(), 1)
	require.NoError(t, err)
	resp = ts.api.Get("/api/v1/records/" + record.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Cowboy Bebop")
}

func TestStartListSync_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		prepare    func(ts *testServer)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing user",
			body:       map[string]any{},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VALIDATION",
		},
		{
			name:       "unknown status",
			body:       map[string]any{"user_id": "alice", "statuses": []string{"binging"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION",
		},
		{
			name: "list source not configured",
			body: map[string]any{"user_id": "alice"},
			prepare: func(ts *testServer) {
				ts.services.Orchestrator = syncer.New(syncer.Deps{Records: ts.store}, syncer.Options{})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION",
		},
		{
			name:       "no token for user",
			body:       map[string]any{"user_id": "mallory"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)
			if tt.prepare != nil {
				tt.prepare(ts)
			}

			resp := ts.api.Post("/api/v1/sync/list", tt.body)
			assert.Equal(t, tt.wantStatus, resp.Code)

			env := decodeEnvelope[any](t, resp.Body.Bytes())
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)

			sessions, err := ts.tracker.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, sessions, "rejected requests must not start a session")
		})
	}
}

func TestStartLibrarySync_NotConfigured(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/sync/library", map[string]any{"user_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/sync/sessions/missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	env := decodeEnvelope[any](t, resp.Body.Bytes())
	assert.Equal(t, "NOT_FOUND", env.Code)
}

func TestCancelSession(t *testing.T) {
	ts := setupTestServer(t)

	id, err := ts.runner.Start(context.Background(), progress.KindList, "alice", func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.NoError(t, err)

	resp := ts.api.Delete("/api/v1/sync/sessions/" + id)
	require.Equal(t, http.StatusAccepted, resp.Code)

	ts.runner.Wait()

	session, err := ts.tracker.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusFailed, session.Status)
	assert.Equal(t, "cancelled", session.Message)

	resp = ts.api.Delete("/api/v1/sync/sessions/" + id)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = ts.api.Delete("/api/v1/sync/sessions/missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListSessions(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/sync/sessions")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeEnvelope[ListSessionsResponse](t, resp.Body.Bytes()).Data.Sessions)

	_, err := ts.tracker.Create(context.Background(), progress.KindImport, "", 3)
	require.NoError(t, err)

	resp = ts.api.Get("/api/v1/sync/sessions")
	assert.Len(t, decodeEnvelope[ListSessionsResponse](t, resp.Body.Bytes()).Data.Sessions, 1)
}
