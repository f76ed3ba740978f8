package providers

import (
	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/logger"
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/sources/dataset"
	"github.com/shirosync/shirosync-server/internal/sources/library"
	"github.com/shirosync/shirosync-server/internal/sources/listsource"
)

// LibraryClient is the media-library client, or nil when no library is configured.
type LibraryClient struct {
	*library.Client
}

// Shutdown stops the client's rate limiter.
func (h *LibraryClient) Shutdown() error {
	if h.Client != nil {
		h.Client.Close()
	}
	return nil
}

// ExternalSources are the id-mapping services in priority order.
type ExternalSources []matcher.ExternalSource

// DatasetFetcher opens the configured cross-reference dataset.
type DatasetFetcher struct {
	mapping.DatasetFetcher
	ID string
}

// ProvideListClient provides the list-tracking service client.
func ProvideListClient(i do.Injector) (*listsource.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return listsource.New(listsource.Config{
		BaseURL:  cfg.ListSource.BaseURL,
		ClientID: cfg.ListSource.ClientID,
		Timeout:  cfg.ListSource.Timeout,
		RPS:      cfg.ListSource.RPS,
	}, listsource.EnvTokens{}, log.ForComponent("listsource"))
}

// ProvideLibraryClient provides the media-library client.
func ProvideLibraryClient(i do.Injector) (*LibraryClient, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Library.BaseURL == "" {
		log.Info("Library sync disabled, LIBRARY_URL not set")
		return &LibraryClient{}, nil
	}

	client, err := library.New(library.Config{
		BaseURL: cfg.Library.BaseURL,
		APIKey:  cfg.Library.APIKey,
		Timeout: cfg.Library.Timeout,
	}, log.ForComponent("library"))
	if err != nil {
		return nil, err
	}
	return &LibraryClient{Client: client}, nil
}

// ProvideExternalSources provides the configured id-mapping services.
func ProvideExternalSources(i do.Injector) (ExternalSources, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var out ExternalSources
	for _, svc := range []struct{ name, url string }{
		{"primary", cfg.MappingServices.PrimaryURL},
		{"fallback", cfg.MappingServices.FallbackURL},
	} {
		if svc.url == "" {
			continue
		}
		out = append(out, dataset.NewMappingService(dataset.MappingServiceConfig{
			Name:            svc.name,
			URL:             svc.url,
			RefreshInterval: cfg.MappingServices.RefreshInterval,
		}, log.ForComponent("mapping_service")))
	}
	return out, nil
}

// ProvideDatasetFetcher provides the dataset fetcher. A local file wins over the URL.
func ProvideDatasetFetcher(i do.Injector) (*DatasetFetcher, error) {
	cfg := do.MustInvoke[*config.Config](i)

	switch {
	case cfg.Dataset.File != "":
		return &DatasetFetcher{DatasetFetcher: dataset.FileFetcher{Path: cfg.Dataset.File}, ID: cfg.Dataset.ID}, nil
	case cfg.Dataset.URL != "":
		return &DatasetFetcher{DatasetFetcher: dataset.NewHTTPFetcher(cfg.Dataset.URL), ID: cfg.Dataset.ID}, nil
	default:
		return &DatasetFetcher{ID: cfg.Dataset.ID}, nil
	}
}
