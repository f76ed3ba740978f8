package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shirosync/shirosync-server/internal/domain"
)

func (s *Server) registerRecordRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getRecord",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{id}",
		Summary:     "Get anime record",
		Description: "Returns a record with its external ids and every user's status",
		Tags:        []string{"Records"},
	}, s.handleGetRecord)
}

// GetRecordInput contains the record path parameter.
type GetRecordInput struct {
	ID string `path:"id" doc:"Record ID"`
}

// RecordOutput wraps a record for Huma.
type RecordOutput struct {
	Body domain.AnimeRecord
}

func (s *Server) handleGetRecord(ctx context.Context, input *GetRecordInput) (*RecordOutput, error) {
	r, err := s.services.Records.FindRecordByID(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &RecordOutput{Body: *r}, nil
}
