package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/progress"
)

func (s *Server) registerMappingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "startMappingImport",
		Method:        http.MethodPost,
		Path:          "/api/v1/mappings/import",
		Summary:       "Import mapping dataset",
		Description:   "Fetches the offline mapping dataset and imports it in the background",
		Tags:          []string{"Mappings"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartImport)

	huma.Register(s.api, huma.Operation{
		OperationID: "getImportStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/mappings/import/{dataset_id}",
		Summary:     "Get import status",
		Description: "Returns the status of the last import of a dataset",
		Tags:        []string{"Mappings"},
	}, s.handleGetImportStatus)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createMapping",
		Method:        http.MethodPost,
		Path:          "/api/v1/mappings",
		Summary:       "Create mapping",
		Description:   "Creates or replaces a mapping by hand; imports never overwrite it",
		Tags:          []string{"Mappings"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateMapping)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchMappings",
		Method:      http.MethodGet,
		Path:        "/api/v1/mappings/search",
		Summary:     "Search mappings",
		Description: "Finds mappings whose title or synonyms contain the query",
		Tags:        []string{"Mappings"},
	}, s.handleSearchMappings)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMapping",
		Method:      http.MethodGet,
		Path:        "/api/v1/mappings/{primary_id}",
		Summary:     "Get mapping",
		Description: "Returns the mapping for a primary id",
		Tags:        []string{"Mappings"},
	}, s.handleGetMapping)

	huma.Register(s.api, huma.Operation{
		OperationID: "confirmMapping",
		Method:      http.MethodPost,
		Path:        "/api/v1/mappings/{primary_id}/confirm",
		Summary:     "Confirm mapping",
		Description: "Marks an imported mapping as verified by a user",
		Tags:        []string{"Mappings"},
	}, s.handleConfirmMapping)
}

// === DTOs ===

// StartImportRequest is the request body for a dataset import.
type StartImportRequest struct {
	DatasetID string `json:"dataset_id,omitempty" validate:"omitempty,max=100" doc:"Dataset identifier; the configured default when empty"`
}

// StartImportInput wraps the import request for Huma.
type StartImportInput struct {
	Body StartImportRequest
}

// ImportStatusInput contains the dataset path parameter.
type ImportStatusInput struct {
	DatasetID string `path:"dataset_id" doc:"Dataset identifier"`
}

// ImportStatusOutput wraps an import status for Huma.
type ImportStatusOutput struct {
	Body domain.ImportStatus
}

// CreateMappingRequest is the request body for a manual mapping.
type CreateMappingRequest struct {
	PrimaryID   int    `json:"primary_id" validate:"required,gt=0" doc:"Primary id"`
	SecondaryID int    `json:"secondary_id" validate:"required,gt=0" doc:"Secondary id"`
	Title       string `json:"title,omitempty" validate:"omitempty,max=500" doc:"Display title"`
	UserID      string `json:"user_id" validate:"required,max=100" doc:"User creating the mapping"`
}

// CreateMappingInput wraps the create mapping request for Huma.
type CreateMappingInput struct {
	Body CreateMappingRequest
}

// MappingOutput wraps a mapping entry for Huma.
type MappingOutput struct {
	Body domain.MappingEntry
}

// GetMappingInput contains the primary id path parameter.
type GetMappingInput struct {
	PrimaryID int `path:"primary_id" minimum:"1" doc:"Primary id"`
}

// ConfirmMappingRequest is the request body for confirming a mapping.
type ConfirmMappingRequest struct {
	UserID string `json:"user_id" validate:"required,max=100" doc:"User confirming the mapping"`
}

// ConfirmMappingInput wraps the confirm request for Huma.
type ConfirmMappingInput struct {
	PrimaryID int `path:"primary_id" minimum:"1" doc:"Primary id"`
	Body      ConfirmMappingRequest
}

// SearchMappingsInput contains search query parameters.
type SearchMappingsInput struct {
	Query string `query:"q" minLength:"1" doc:"Title text"`
	Limit int    `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum results"`
}

// SearchMappingsResponse contains matching mappings.
type SearchMappingsResponse struct {
	Mappings []domain.MappingEntry `json:"mappings" doc:"Matching mappings"`
}

// SearchMappingsOutput wraps the search response for Huma.
type SearchMappingsOutput struct {
	Body SearchMappingsResponse
}

// === Handlers ===

func (s *Server) handleStartImport(ctx context.Context, input *StartImportInput) (*SessionStartedOutput, error) {
	if err := s.validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}
	if s.services.Importer == nil || s.services.Dataset == nil {
		return nil, toAPIError(domainerrors.Validation("mapping dataset is not configured"))
	}

	datasetID := input.Body.DatasetID
	if datasetID == "" {
		datasetID = s.services.DatasetID
	}
	if datasetID == "" {
		return nil, toAPIError(domainerrors.Validation("dataset id is required"))
	}

	id, err := s.services.Runner.Start(ctx, progress.KindImport, "", func(ctx context.Context, sessionID string) (string, error) {
		stats, err := s.services.Importer.ImportFrom(ctx, mapping.Run{DatasetID: datasetID, SessionID: sessionID}, s.services.Dataset)
		if err != nil {
			return "", err
		}
		return stats.Summary(), nil
	})
	if err != nil {
		return nil, toAPIError(err)
	}

	s.logger.Info("mapping import started", "session_id", id, "dataset_id", datasetID)
	return &SessionStartedOutput{Body: SessionStartedResponse{SessionID: id}}, nil
}

func (s *Server) handleGetImportStatus(ctx context.Context, input *ImportStatusInput) (*ImportStatusOutput, error) {
	status, err := s.services.ImportStatus.GetImportStatus(ctx, input.DatasetID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ImportStatusOutput{Body: *status}, nil
}

func (s *Server) handleCreateMapping(ctx context.Context, input *CreateMappingInput) (*MappingOutput, error) {
	if err := s.validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}

	m, err := s.services.Mappings.CreateManual(ctx, input.Body.PrimaryID, input.Body.SecondaryID, input.Body.Title, input.Body.UserID)
	if err != nil {
		return nil, toAPIError(err)
	}
	if s.services.Matcher != nil {
		s.services.Matcher.ClearCache()
	}

	s.logger.Info("manual mapping created",
		"primary_id", m.PrimaryID, "secondary_id", m.SecondaryID, "user_id", input.Body.UserID)
	return &MappingOutput{Body: *m}, nil
}

func (s *Server) handleGetMapping(ctx context.Context, input *GetMappingInput) (*MappingOutput, error) {
	m, err := s.services.Mappings.FindByPrimary(ctx, input.PrimaryID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &MappingOutput{Body: *m}, nil
}

func (s *Server) handleConfirmMapping(ctx context.Context, input *ConfirmMappingInput) (*MappingOutput, error) {
	if err := s.validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}

	m, err := s.services.Mappings.Confirm(ctx, input.PrimaryID, input.Body.UserID)
	if err != nil {
		return nil, toAPIError(err)
	}

	s.logger.Info("mapping confirmed", "primary_id", m.PrimaryID, "user_id", input.Body.UserID)
	return &MappingOutput{Body: *m}, nil
}

func (s *Server) handleSearchMappings(ctx context.Context, input *SearchMappingsInput) (*SearchMappingsOutput, error) {
	found, err := s.services.Mappings.SearchByTitle(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, toAPIError(err)
	}
	if found == nil {
		found = []domain.MappingEntry{}
	}
	return &SearchMappingsOutput{Body: SearchMappingsResponse{Mappings: found}}, nil
}
