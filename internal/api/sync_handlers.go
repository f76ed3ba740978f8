package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/syncer"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "startListSync",
		Method:        http.MethodPost,
		Path:          "/api/v1/sync/list",
		Summary:       "Start list sync",
		Description:   "Starts a background sync of the user's list service entries",
		Tags:          []string{"Sync"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartListSync)

	huma.Register(s.api, huma.Operation{
		OperationID:   "startLibrarySync",
		Method:        http.MethodPost,
		Path:          "/api/v1/sync/library",
		Summary:       "Start library sync",
		Description:   "Starts a background sync of the user's media library watch state",
		Tags:          []string{"Sync"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartLibrarySync)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSyncSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/sessions",
		Summary:     "List sync sessions",
		Description: "Returns every tracked session, running or finished",
		Tags:        []string{"Sync"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSyncSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/sessions/{id}",
		Summary:     "Get sync session",
		Description: "Returns the progress snapshot of one session",
		Tags:        []string{"Sync"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID:   "cancelSyncSession",
		Method:        http.MethodDelete,
		Path:          "/api/v1/sync/sessions/{id}",
		Summary:       "Cancel sync session",
		Description:   "Requests cooperative cancellation of a running session",
		Tags:          []string{"Sync"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleCancelSession)
}

// === DTOs ===

// StartListSyncRequest is the request body for a list sync.
type StartListSyncRequest struct {
	UserID   string   `json:"user_id" validate:"required,max=100" doc:"List service user"`
	Statuses []string `json:"statuses,omitempty" validate:"omitempty,max=5,dive,list_status" doc:"Partitions to fetch; all when empty"`
	Force    bool     `json:"force,omitempty" doc:"Ignore the freshness window"`
	Enrich   bool     `json:"enrich,omitempty" doc:"Resolve missing secondary ids"`
}

// StartListSyncInput wraps the list sync request for Huma.
type StartListSyncInput struct {
	Body StartListSyncRequest
}

// StartLibrarySyncRequest is the request body for a library sync.
type StartLibrarySyncRequest struct {
	UserID string `json:"user_id" validate:"required,max=100" doc:"List service user the library is synced for"`
	Force  bool   `json:"force,omitempty" doc:"Ignore the freshness window"`
	Push   bool   `json:"push,omitempty" doc:"Push advancing statuses back to the list service"`
}

// StartLibrarySyncInput wraps the library sync request for Huma.
type StartLibrarySyncInput struct {
	Body StartLibrarySyncRequest
}

// SessionStartedResponse identifies a session that is now running.
type SessionStartedResponse struct {
	SessionID string `json:"session_id" doc:"Progress session ID"`
}

// SessionStartedOutput wraps the session started response for Huma.
type SessionStartedOutput struct {
	Body SessionStartedResponse
}

// SessionInput contains the session path parameter.
type SessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// SessionOutput wraps a session snapshot for Huma.
type SessionOutput struct {
	Body progress.Session
}

// ListSessionsResponse contains every tracked session.
type ListSessionsResponse struct {
	Sessions []progress.Session `json:"sessions" doc:"Tracked sessions"`
}

// ListSessionsOutput wraps the session list for Huma.
type ListSessionsOutput struct {
	Body ListSessionsResponse
}

// === Handlers ===

func (s *Server) handleStartListSync(ctx context.Context, input *StartListSyncInput) (*SessionStartedOutput, error) {
	if err := s.validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}
	if !s.services.Orchestrator.HasList() {
		return nil, toAPIError(domainerrors.Validation("list source is not configured"))
	}
	// Credential problems surface here instead of failing the background session.
	if s.services.Tokens != nil {
		if _, err := s.services.Tokens.Token(ctx, input.Body.UserID); err != nil {
			if !domainerrors.IsAuth(err) {
				err = domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "list token unavailable")
			}
			return nil, toAPIError(err)
		}
	}

	statuses := make([]domain.ListStatus, 0, len(input.Body.Statuses))
	for _, raw := range input.Body.Statuses {
		st, _ := domain.ParseListStatus(raw)
		statuses = append(statuses, st)
	}

	task := s.services.Orchestrator.ListTask(syncer.ListRequest{
		UserID:   input.Body.UserID,
		Statuses: statuses,
		Force:    input.Body.Force,
		Enrich:   input.Body.Enrich,
	})
	id, err := s.services.Runner.Start(ctx, progress.KindList, input.Body.UserID, task)
	if err != nil {
		return nil, toAPIError(err)
	}

	s.logger.Info("list sync started", "session_id", id, "user_id", input.Body.UserID)
	return &SessionStartedOutput{Body: SessionStartedResponse{SessionID: id}}, nil
}

func (s *Server) handleStartLibrarySync(ctx context.Context, input *StartLibrarySyncInput) (*SessionStartedOutput, error) {
	if err := s.validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}
	if !s.services.Orchestrator.HasLibrary() {
		return nil, toAPIError(domainerrors.Validation("library source is not configured"))
	}

	task := s.services.Orchestrator.LibraryTask(syncer.LibraryRequest{
		UserID: input.Body.UserID,
		Force:  input.Body.Force,
		Push:   input.Body.Push,
	})
	id, err := s.services.Runner.Start(ctx, progress.KindLibrary, input.Body.UserID, task)
	if err != nil {
		return nil, toAPIError(err)
	}

	s.logger.Info("library sync started", "session_id", id, "user_id", input.Body.UserID)
	return &SessionStartedOutput{Body: SessionStartedResponse{SessionID: id}}, nil
}

func (s *Server) handleListSessions(ctx context.Context, _ *struct{}) (*ListSessionsOutput, error) {
	sessions, err := s.services.Progress.List(ctx)
	if err != nil {
		return nil, toAPIError(err)
	}
	if sessions == nil {
		sessions = []progress.Session{}
	}
	return &ListSessionsOutput{Body: ListSessionsResponse{Sessions: sessions}}, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	session, err := s.services.Progress.Get(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &SessionOutput{Body: *session}, nil
}

func (s *Server) handleCancelSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	session, err := s.services.Progress.Get(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	if !s.services.Runner.Cancel(input.ID) {
		conflict := domainerrors.Conflictf("session %s is not running", input.ID)
		conflict.Details = map[string]string{"status": string(session.Status)}
		return nil, toAPIError(conflict)
	}

	s.logger.Info("sync session cancel requested", "session_id", input.ID)
	return &SessionOutput{Body: *session}, nil
}

// validate runs the struct validator when one is configured.
func (s *Server) validate(v any) error {
	if s.services.Validator == nil {
		return nil
	}
	return s.services.Validator.Validate(v)
}
