package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/classifier"
	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/events"
	"github.com/shirosync/shirosync-server/internal/logger"
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/sources/listsource"
	"github.com/shirosync/shirosync-server/internal/syncer"
)

const (
	listFuzzyThreshold    = 0.85
	libraryFuzzyThreshold = 0.8
	fuzzyCandidateLimit   = 10
)

// ListMatcher resolves list entries to secondary ids.
type ListMatcher struct {
	*matcher.Matcher
}

// LibraryMatcher resolves library series to records by title.
type LibraryMatcher struct {
	*matcher.Matcher
}

// RunnerHandle wraps the background runner with shutdown capability.
type RunnerHandle struct {
	*syncer.Runner
}

// Shutdown cancels running sessions and waits for them to finish.
func (h *RunnerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Runner.Shutdown(ctx)
}

// ProvideClassifier provides the anime scope classifier.
func ProvideClassifier(i do.Injector) (classifier.Classifier, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	rules := classifier.DefaultRules()
	if cfg.Classifier.RulesFile != "" {
		loaded, err := classifier.LoadRules(cfg.Classifier.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
		log.Info("Classifier rules loaded", "path", cfg.Classifier.RulesFile)
	}
	return classifier.New(rules), nil
}

// ProvideListMatcher provides the matcher used for list enrichment.
func ProvideListMatcher(i do.Injector) (*ListMatcher, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	publisher := do.MustInvoke[*PublisherHandle](i)
	external := do.MustInvoke[ExternalSources](i)
	list := do.MustInvoke[*listsource.Client](i)

	strategies := []matcher.Strategy{
		matcher.DirectStrategy{},
		&matcher.StoreStrategy{Mappings: storeHandle.Store},
	}
	if len(external) > 0 {
		strategies = append(strategies, &matcher.ExternalStrategy{
			Sources:  external,
			Recorder: events.NewAnomalyRecorder(storeHandle.Store, publisher.Publisher, log.ForComponent("anomalies")),
			Logger:   log.ForComponent("matcher"),
		})
	}
	strategies = append(strategies, &matcher.FuzzyStrategy{
		Searcher:  list,
		Label:     "list_search",
		Threshold: listFuzzyThreshold,
		Limit:     fuzzyCandidateLimit,
	})

	m := matcher.New(strategies,
		matcher.WithLogger(log.ForComponent("matcher")),
		matcher.WithAnomalyStore(storeHandle.Store),
	)
	log.Info("List matcher ready", "strategies", len(strategies), "external_sources", len(external))
	return &ListMatcher{Matcher: m}, nil
}

// ProvideLibraryMatcher provides the matcher used for library series. It searches
// the title index and falls back to the mapping table.
func ProvideLibraryMatcher(i do.Injector) (*LibraryMatcher, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)

	m := matcher.New([]matcher.Strategy{
		&matcher.FuzzyStrategy{
			Searcher:  indexHandle.TitleIndex,
			Label:     "title_index",
			Threshold: libraryFuzzyThreshold,
			Limit:     fuzzyCandidateLimit,
		},
		&matcher.FuzzyStrategy{
			Searcher:  &matcher.MappingSearcher{Mappings: storeHandle.Store},
			Label:     "mapping_titles",
			Threshold: libraryFuzzyThreshold,
			Limit:     fuzzyCandidateLimit,
		},
	}, matcher.WithLogger(log.ForComponent("library_matcher")))

	return &LibraryMatcher{Matcher: m}, nil
}

// ProvideOrchestrator provides the sync orchestrator.
func ProvideOrchestrator(i do.Injector) (*syncer.Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tracker := do.MustInvoke[*TrackerHandle](i)
	listMatcher := do.MustInvoke[*ListMatcher](i)
	libraryMatcher := do.MustInvoke[*LibraryMatcher](i)
	list := do.MustInvoke[*listsource.Client](i)
	lib := do.MustInvoke[*LibraryClient](i)
	scope := do.MustInvoke[classifier.Classifier](i)

	deps := syncer.Deps{
		Records:        storeHandle.Store,
		Mappings:       storeHandle.Store,
		Matcher:        listMatcher.Matcher,
		LibraryMatcher: libraryMatcher.Matcher,
		List:           list,
		Progress:       tracker.Tracker,
		Classifier:     scope,
		Logger:         log.ForComponent("syncer"),
	}
	// A nil client must stay a nil interface.
	if lib.Client != nil {
		deps.Library = lib.Client
	}

	return syncer.New(deps, syncer.Options{
		FreshnessWindow: cfg.Sync.FreshnessWindow,
		UserPause:       cfg.Sync.UserPause,
	}), nil
}

// ProvideRunner provides the background session runner.
func ProvideRunner(i do.Injector) (*RunnerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	tracker := do.MustInvoke[*TrackerHandle](i)
	publisher := do.MustInvoke[*PublisherHandle](i)

	return &RunnerHandle{Runner: syncer.NewRunner(tracker.Tracker, publisher.Publisher, log.ForComponent("runner"))}, nil
}

// ProvideImporter provides the dataset importer.
func ProvideImporter(i do.Injector) (*mapping.Importer, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tracker := do.MustInvoke[*TrackerHandle](i)
	publisher := do.MustInvoke[*PublisherHandle](i)

	return mapping.NewImporter(storeHandle.Store, storeHandle.Store,
		mapping.WithTracker(tracker.Tracker),
		mapping.WithPublisher(publisher.Publisher),
		mapping.WithLogger(log.ForComponent("importer")),
	), nil
}

// ProvideScheduler provides the multi-user batch scheduler.
func ProvideScheduler(i do.Injector) (*syncer.Scheduler, error) {
	log := do.MustInvoke[*logger.Logger](i)
	orch := do.MustInvoke[*syncer.Orchestrator](i)
	runner := do.MustInvoke[*RunnerHandle](i)
	tracker := do.MustInvoke[*TrackerHandle](i)

	return syncer.NewScheduler(orch, runner.Runner, tracker.Tracker, log.ForComponent("scheduler")), nil
}
