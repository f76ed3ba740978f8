package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/api"
	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/logger"
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/sources/listsource"
	"github.com/shirosync/shirosync-server/internal/sse"
	"github.com/shirosync/shirosync-server/internal/syncer"
	"github.com/shirosync/shirosync-server/internal/validation"
)

// SSEManagerHandle wraps the SSE manager with shutdown capability.
type SSEManagerHandle struct {
	*sse.Manager
	detach func()
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.detach()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Manager.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideSSEManager provides the SSE manager fed by the progress tracker.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	tracker := do.MustInvoke[*TrackerHandle](i)

	manager := sse.NewManager(log.ForComponent("sse"))
	detach := manager.Attach(tracker.Tracker)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Run(ctx)

	return &SSEManagerHandle{Manager: manager, detach: detach, cancel: cancel}, nil
}

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	tracker := do.MustInvoke[*TrackerHandle](i)
	runner := do.MustInvoke[*RunnerHandle](i)
	orch := do.MustInvoke[*syncer.Orchestrator](i)
	listMatcher := do.MustInvoke[*ListMatcher](i)
	importer := do.MustInvoke[*mapping.Importer](i)
	fetcher := do.MustInvoke[*DatasetFetcher](i)
	list := do.MustInvoke[*listsource.Client](i)

	services := &api.Services{
		Orchestrator: orch,
		Runner:       runner.Runner,
		Progress:     tracker.Tracker,
		Importer:     importer,
		DatasetID:    fetcher.ID,
		Mappings:     storeHandle.Store,
		Records:      storeHandle.Store,
		ImportStatus: storeHandle.Store,
		Tokens:       list.Tokens(),
		Matcher:      listMatcher.Matcher,
		Search:       indexHandle.TitleIndex,
		Validator:    validation.New(),
	}
	if fetcher.DatasetFetcher != nil {
		services.Dataset = fetcher.DatasetFetcher
	}

	sseHandler := sse.NewHandler(sseHandle.Manager, tracker.Tracker, log.ForComponent("sse"))
	handler := api.NewServer(services, sseHandler, sseHandle.Manager, api.Options{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerMinute: cfg.Server.RateLimit,
	}, log.ForComponent("api"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
