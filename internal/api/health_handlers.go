package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const (
	healthOK       = "healthy"
	healthDegraded = "degraded"
	healthDown     = "unhealthy"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Health check",
		Description: "Probes the mapping database, title index, session tracker and progress stream",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth is the result of one probe.
type ComponentHealth struct {
	Status  string `json:"status" doc:"healthy, degraded or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Probe duration"`
	Message string `json:"message,omitempty"`
}

// HealthResponse reports the worst component status as the overall status.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"healthy, degraded or unhealthy"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthOutput wraps HealthResponse for Huma.
type HealthOutput struct {
	Body HealthResponse
}

// probe returns a short description, or an error when the component failed.
// A nil probe marks an optional component that is not wired.
type probe func(ctx context.Context) (string, error)

func (s *Server) probes() map[string]probe {
	p := map[string]probe{"database": nil, "search": nil, "sessions": nil, "sse": nil}
	if s.services != nil && s.services.Mappings != nil {
		p["database"] = func(ctx context.Context) (string, error) {
			n, err := s.services.Mappings.CountMappings(ctx)
			return fmt.Sprintf("%d mappings", n), err
		}
	}
	if s.services != nil && s.services.Search != nil {
		p["search"] = func(context.Context) (string, error) {
			n, err := s.services.Search.DocumentCount()
			return fmt.Sprintf("%d documents", n), err
		}
	}
	if s.services != nil && s.services.Progress != nil {
		p["sessions"] = func(ctx context.Context) (string, error) {
			all, err := s.services.Progress.List(ctx)
			active := 0
			for _, sess := range all {
				if !sess.Status.Terminal() {
					active++
				}
			}
			return fmt.Sprintf("%d active of %d", active, len(all)), err
		}
	}
	if s.sseManager != nil {
		p["sse"] = func(context.Context) (string, error) {
			return fmt.Sprintf("%d subscribers connected", s.sseManager.SubscriberCount()), nil
		}
	}
	return p
}

func runProbe(ctx context.Context, name string, p probe) ComponentHealth {
	if p == nil {
		return ComponentHealth{Status: healthDegraded, Message: name + " not configured"}
	}
	start := time.Now()
	msg, err := p(ctx)
	latency := time.Since(start).String()
	if err != nil {
		return ComponentHealth{Status: healthDown, Latency: latency, Message: name + " probe failed"}
	}
	return ComponentHealth{Status: healthOK, Latency: latency, Message: msg}
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := HealthResponse{Status: healthOK, Components: map[string]ComponentHealth{}}
	for name, p := range s.probes() {
		c := runProbe(ctx, name, p)
		resp.Components[name] = c
		switch {
		case c.Status == healthDown:
			resp.Status = healthDown
		case c.Status == healthDegraded && resp.Status == healthOK:
			resp.Status = healthDegraded
		}
	}
	return &HealthOutput{Body: resp}, nil
}
