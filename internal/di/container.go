// Package di provides dependency injection configuration for the sync server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/classifier"
	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/di/providers"
	"github.com/shirosync/shirosync-server/internal/logger"
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/sources/listsource"
	"github.com/shirosync/shirosync-server/internal/syncer"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideTracker)
	do.Provide(injector, providers.ProvidePublisher)

	// Sources
	do.Provide(injector, providers.ProvideListClient)
	do.Provide(injector, providers.ProvideLibraryClient)
	do.Provide(injector, providers.ProvideExternalSources)
	do.Provide(injector, providers.ProvideDatasetFetcher)

	// Engine
	do.Provide(injector, providers.ProvideClassifier)
	do.Provide(injector, providers.ProvideListMatcher)
	do.Provide(injector, providers.ProvideLibraryMatcher)
	do.Provide(injector, providers.ProvideOrchestrator)
	do.Provide(injector, providers.ProvideRunner)
	do.Provide(injector, providers.ProvideImporter)
	do.Provide(injector, providers.ProvideScheduler)

	// Workers
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideDatasetWatcher)
	do.Provide(injector, providers.ProvideSchedulerJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SearchIndexHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.TrackerHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.PublisherHandle](injector)

	// Sources
	if _, err := do.Invoke[*listsource.Client](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.LibraryClient](injector); err != nil {
		return err
	}

	// Engine
	if _, err := do.Invoke[classifier.Classifier](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*syncer.Orchestrator](injector)
	_ = do.MustInvoke[*providers.RunnerHandle](injector)
	_ = do.MustInvoke[*mapping.Importer](injector)

	// Workers
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	if _, err := do.Invoke[*providers.DatasetWatcherHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.SchedulerJob](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	// Trigger search reindex if needed
	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
