package dataset

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/sources"
)

// DefaultRefreshInterval is how long a loaded mapping table is trusted.
const DefaultRefreshInterval = 24 * time.Hour

// MappingService answers primary -> secondary lookups from a remote JSON table,
// loaded on first use and reloaded once it is older than the refresh interval.
type MappingService struct {
	name    string
	url     string
	ttl     time.Duration
	http    *http.Client
	clock   func() time.Time
	logger  *slog.Logger
	loading singleflight.Group

	mu       sync.RWMutex
	table    map[int]int
	loadedAt time.Time
}

// MappingServiceConfig configures a MappingService.
type MappingServiceConfig struct {
	Name            string
	URL             string
	RefreshInterval time.Duration
	Timeout         time.Duration
	Clock           func() time.Time
}

// NewMappingService creates a service. Nothing is fetched until the first lookup.
func NewMappingService(cfg MappingServiceConfig, logger *slog.Logger) *MappingService {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = downloadTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MappingService{
		name:   cfg.Name,
		url:    cfg.URL,
		ttl:    cfg.RefreshInterval,
		http:   &http.Client{Timeout: cfg.Timeout},
		clock:  cfg.Clock,
		logger: logger.With("mapping_service", cfg.Name),
	}
}

// Name identifies the service in match results and anomalies.
func (s *MappingService) Name() string { return s.name }

type row struct {
	MalID     *int `json:"mal_id"`
	AnilistID *int `json:"anilist_id"`
}

// LookupSecondary returns the secondary id for primaryID.
// A failed refresh falls back to the stale table when one exists.
func (s *MappingService) LookupSecondary(ctx context.Context, primaryID int) (int, bool, error) {
	table, err := s.ensureLoaded(ctx)
	if err != nil {
		return 0, false, err
	}
	secondary, ok := table[primaryID]
	return secondary, ok, nil
}

// Size returns the number of loaded mappings.
func (s *MappingService) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

func (s *MappingService) ensureLoaded(ctx context.Context) (map[int]int, error) {
	s.mu.RLock()
	table, loadedAt := s.table, s.loadedAt
	s.mu.RUnlock()

	if table != nil && s.clock().Sub(loadedAt) < s.ttl {
		return table, nil
	}

	v, err, _ := s.loading.Do("load", func() (any, error) {
		return s.load(context.WithoutCancel(ctx))
	})
	if err != nil {
		if table != nil {
			s.logger.Warn("mapping refresh failed, using stale table", "error", err, "loaded_at", loadedAt)
			return table, nil
		}
		return nil, err
	}
	return v.(map[int]int), nil
}

func (s *MappingService) load(ctx context.Context) (map[int]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, domainerrors.FromTransport(err, s.name+" mapping download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, sources.StatusError(s.name, resp.StatusCode, body)
	}

	var rows []row
	if err := json.UnmarshalRead(resp.Body, &rows); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidFormat, "decode "+s.name+" mappings")
	}

	table := make(map[int]int, len(rows))
	for _, r := range rows {
		if r.MalID == nil || r.AnilistID == nil || *r.MalID <= 0 || *r.AnilistID <= 0 {
			continue
		}
		table[*r.MalID] = *r.AnilistID
	}

	s.mu.Lock()
	s.table = table
	s.loadedAt = s.clock()
	s.mu.Unlock()

	s.logger.Info("mapping table loaded", "entries", len(table))
	return table, nil
}
