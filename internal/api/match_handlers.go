package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/matcher"
)

func (s *Server) registerMatchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "resolveMatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/match",
		Summary:     "Resolve identity",
		Description: "Runs the match cascade for a descriptor and returns the first hit",
		Tags:        []string{"Match"},
	}, s.handleResolveMatch)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMatchCache",
		Method:      http.MethodGet,
		Path:        "/api/v1/match/cache",
		Summary:     "Get match cache",
		Description: "Returns the size and keys of the match cache",
		Tags:        []string{"Match"},
	}, s.handleGetMatchCache)

	huma.Register(s.api, huma.Operation{
		OperationID: "clearMatchCache",
		Method:      http.MethodDelete,
		Path:        "/api/v1/match/cache",
		Summary:     "Clear match cache",
		Description: "Drops every cached resolution",
		Tags:        []string{"Match"},
	}, s.handleClearMatchCache)

	huma.Register(s.api, huma.Operation{
		OperationID: "listMatchAnomalies",
		Method:      http.MethodGet,
		Path:        "/api/v1/match/anomalies",
		Summary:     "List match anomalies",
		Description: "Returns recent disagreements between external mapping sources",
		Tags:        []string{"Match"},
	}, s.handleListAnomalies)
}

// === DTOs ===

// ResolveMatchRequest describes the title to resolve.
type ResolveMatchRequest struct {
	Title       string   `json:"title" validate:"required,max=500" doc:"Main title"`
	AltTitles   []string `json:"alt_titles,omitempty" doc:"Alternate titles"`
	Year        int      `json:"year,omitempty" validate:"omitempty,gte=1900,lte=2100" doc:"Release year"`
	PrimaryID   *int     `json:"primary_id,omitempty" doc:"Known primary id"`
	SecondaryID *int     `json:"secondary_id,omitempty" doc:"Known secondary id"`
	MediaType   string   `json:"media_type,omitempty" doc:"Media type, e.g. tv or movie"`
	Episodes    int      `json:"episodes,omitempty" doc:"Episode count"`
}

// ResolveMatchInput wraps the resolve request for Huma.
type ResolveMatchInput struct {
	Body ResolveMatchRequest
}

// MatchOutput wraps a resolved match for Huma.
type MatchOutput struct {
	Body matcher.Match
}

// MatchCacheResponse describes the cache contents.
type MatchCacheResponse struct {
	Size       int      `json:"size" doc:"Cached resolutions"`
	Keys       []string `json:"keys" doc:"Cache keys"`
	Strategies []string `json:"strategies" doc:"Cascade order"`
}

// MatchCacheOutput wraps the cache response for Huma.
type MatchCacheOutput struct {
	Body MatchCacheResponse
}

// ClearMatchCacheResponse reports how many entries were dropped.
type ClearMatchCacheResponse struct {
	Cleared int `json:"cleared" doc:"Entries removed"`
}

// ClearMatchCacheOutput wraps the clear response for Huma.
type ClearMatchCacheOutput struct {
	Body ClearMatchCacheResponse
}

// ListAnomaliesInput contains anomaly query parameters.
type ListAnomaliesInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum results"`
}

// ListAnomaliesResponse contains recent anomalies.
type ListAnomaliesResponse struct {
	Anomalies []domain.MatchAnomaly `json:"anomalies" doc:"Most recent first"`
}

// ListAnomaliesOutput wraps the anomaly list for Huma.
type ListAnomaliesOutput struct {
	Body ListAnomaliesResponse
}

// === Handlers ===

func (s *Server) handleResolveMatch(ctx context.Context, input *ResolveMatchInput) (*MatchOutput, error) {
	if err := s.validate(input.Body); err != nil {
		return nil, toAPIError(err)
	}

	m, err := s.services.Matcher.Resolve(ctx, matcher.Descriptor{
		Title:       input.Body.Title,
		AltTitles:   input.Body.AltTitles,
		Year:        input.Body.Year,
		PrimaryID:   input.Body.PrimaryID,
		SecondaryID: input.Body.SecondaryID,
		MediaType:   input.Body.MediaType,
		Episodes:    input.Body.Episodes,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	if m == nil {
		return nil, toAPIError(domainerrors.NotFoundf("no match for %q", input.Body.Title))
	}
	return &MatchOutput{Body: *m}, nil
}

func (s *Server) handleGetMatchCache(_ context.Context, _ *struct{}) (*MatchCacheOutput, error) {
	stats := s.services.Matcher.CacheStats()
	keys := stats.Keys
	if keys == nil {
		keys = []string{}
	}
	return &MatchCacheOutput{Body: MatchCacheResponse{
		Size:       stats.Size,
		Keys:       keys,
		Strategies: s.services.Matcher.Strategies(),
	}}, nil
}

func (s *Server) handleClearMatchCache(_ context.Context, _ *struct{}) (*ClearMatchCacheOutput, error) {
	n := s.services.Matcher.ClearCache()
	s.logger.Info("match cache cleared", "entries", n)
	return &ClearMatchCacheOutput{Body: ClearMatchCacheResponse{Cleared: n}}, nil
}

func (s *Server) handleListAnomalies(ctx context.Context, input *ListAnomaliesInput) (*ListAnomaliesOutput, error) {
	anomalies, err := s.services.Matcher.Anomalies(ctx, input.Limit)
	if err != nil {
		return nil, toAPIError(err)
	}
	if anomalies == nil {
		anomalies = []domain.MatchAnomaly{}
	}
	return &ListAnomaliesOutput{Body: ListAnomaliesResponse{Anomalies: anomalies}}, nil
}
