// Package api provides the HTTP API server and handlers for the sync engine.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shirosync/shirosync-server/internal/sse"
)

// Options configure the HTTP surface.
type Options struct {
	CORSOrigins []string
	// RequestsPerMinute limits mutating requests per client IP. Zero disables it.
	RequestsPerMinute int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services   *Services
	sseHandler *sse.Handler
	sseManager *sse.Manager
	router     *chi.Mux
	api        huma.API
	limiter    *RateLimiter
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, sseHandler *sse.Handler, sseManager *sse.Manager, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		services:   services,
		sseHandler: sseHandler,
		sseManager: sseManager,
		router:     chi.NewRouter(),
		logger:     logger,
	}
	if opts.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(opts.RequestsPerMinute, time.Minute, opts.RequestsPerMinute)
	}

	s.setupMiddleware(opts)

	humaConfig := huma.DefaultConfig("shirosync API", "1.0.0")
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the server's background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}
	if s.limiter != nil {
		s.router.Use(RateLimitMiddleware(s.limiter, s.logger))
	}
}

func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerSyncRoutes()
	s.registerMappingRoutes()
	s.registerMatchRoutes()
	s.registerRecordRoutes()

	// SSE bypasses huma: the response is a stream, not a document.
	if s.sseHandler != nil {
		s.router.Get("/api/v1/sync/events", s.sseHandler.ServeHTTP)
	}
}
