package matcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

// DirectStrategy accepts a secondary id the descriptor already carries.
type DirectStrategy struct{}

// Name implements Strategy.
func (DirectStrategy) Name() string { return string(MethodDirect) }

// Attempt implements Strategy. It never performs I/O.
func (DirectStrategy) Attempt(_ context.Context, d Descriptor) (*Match, error) {
	if d.SecondaryID == nil || *d.SecondaryID <= 0 {
		return nil, nil
	}
	return &Match{
		SecondaryID: *d.SecondaryID,
		Title:       d.Title,
		Confidence:  ConfidenceExact,
		Method:      MethodDirect,
	}, nil
}

// StoreStrategy looks the primary id up in the mapping store.
type StoreStrategy struct {
	Mappings store.MappingStore
}

// Name implements Strategy.
func (s *StoreStrategy) Name() string { return string(MethodStore) }

// Attempt implements Strategy.
func (s *StoreStrategy) Attempt(ctx context.Context, d Descriptor) (*Match, error) {
	if d.PrimaryID == nil {
		return nil, nil
	}
	m, err := s.Mappings.FindByPrimary(ctx, *d.PrimaryID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &Match{
		SecondaryID: m.SecondaryID,
		PrimaryID:   m.PrimaryID,
		Title:       m.Title,
		Confidence:  ConfidenceExact,
		Method:      MethodStore,
	}, nil
}

// AnomalyRecorder receives divergences between external sources.
type AnomalyRecorder interface {
	RecordAnomaly(ctx context.Context, anomaly *domain.MatchAnomaly) error
}

// ExternalStrategy consults every external source in priority order.
// The first hit wins; any other source that disagrees raises an anomaly.
type ExternalStrategy struct {
	Sources  []ExternalSource
	Recorder AnomalyRecorder // optional
	Logger   *slog.Logger
}

// Name implements Strategy.
func (s *ExternalStrategy) Name() string { return string(MethodExternal) }

// Attempt implements Strategy. Per-source failures are logged and skipped.
func (s *ExternalStrategy) Attempt(ctx context.Context, d Descriptor) (*Match, error) {
	if d.PrimaryID == nil || len(s.Sources) == 0 {
		return nil, nil
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		chosen       int
		chosenSource string
		candidates   = make(map[string]int)
	)
	for _, src := range s.Sources {
		secondary, found, err := src.LookupSecondary(ctx, *d.PrimaryID)
		if err != nil {
			logger.Warn("external mapping source failed",
				"source", src.Name(),
				"primary_id", *d.PrimaryID,
				"error", err,
			)
			continue
		}
		if !found || secondary <= 0 {
			continue
		}
		candidates[src.Name()] = secondary
		if chosenSource == "" {
			chosen, chosenSource = secondary, src.Name()
		}
	}

	if chosenSource == "" {
		return nil, nil
	}

	if diverges(candidates, chosen) {
		anomaly := &domain.MatchAnomaly{
			PrimaryID:    *d.PrimaryID,
			Chosen:       chosen,
			ChosenSource: chosenSource,
			Candidates:   candidates,
			DetectedAt:   time.Now(),
		}
		logger.Warn("external mapping sources disagree",
			"primary_id", anomaly.PrimaryID,
			"chosen", chosen,
			"chosen_source", chosenSource,
			"candidates", candidates,
		)
		if s.Recorder != nil {
			if err := s.Recorder.RecordAnomaly(ctx, anomaly); err != nil {
				logger.Warn("failed to record mapping anomaly", "primary_id", anomaly.PrimaryID, "error", err)
			}
		}
	}

	return &Match{
		SecondaryID: chosen,
		PrimaryID:   *d.PrimaryID,
		Title:       d.Title,
		Confidence:  ConfidenceExternal,
		Method:      MethodExternal,
	}, nil
}

func diverges(candidates map[string]int, chosen int) bool {
	for _, v := range candidates {
		if v != chosen {
			return true
		}
	}
	return false
}

// Fuzzy scoring weights and acceptance threshold.
const (
	weightTitle     = 0.6
	weightYear      = 0.2
	weightMediaType = 0.1
	weightEpisodes  = 0.1

	DefaultThreshold   = 0.70
	defaultSearchLimit = 10
)

var plausibleMediaTypes = map[string]bool{
	"tv":      true,
	"ova":     true,
	"ona":     true,
	"special": true,
	"movie":   true,
	"series":  true,
}

// FuzzyStrategy searches by normalized title and scores every candidate.
type FuzzyStrategy struct {
	Searcher Searcher
	// Label overrides the strategy name, so several fuzzy stages can coexist.
	Label     string
	Threshold float64
	Limit     int
}

// Name implements Strategy.
func (s *FuzzyStrategy) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return string(MethodFuzzy)
}

// Attempt implements Strategy.
func (s *FuzzyStrategy) Attempt(ctx context.Context, d Descriptor) (*Match, error) {
	query := NormalizeTitle(d.Title)
	if query == "" {
		return nil, nil
	}

	limit := s.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	candidates, err := s.Searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	var (
		best      *Candidate
		bestScore float64
	)
	titles := append([]string{d.Title}, d.AltTitles...)
	for i := range candidates {
		score := Score(titles, d.Year, candidates[i])
		if best == nil || score > bestScore {
			best, bestScore = &candidates[i], score
		}
	}

	if best == nil || bestScore < threshold {
		return nil, nil
	}

	return &Match{
		SecondaryID: best.SecondaryID,
		PrimaryID:   best.PrimaryID,
		RecordID:    best.RecordID,
		Title:       best.Title,
		Confidence:  bestScore,
		Method:      MethodFuzzy,
		Candidate:   best,
	}, nil
}

// Score is the weighted composite used to rank fuzzy candidates.
func Score(titles []string, year int, c Candidate) float64 {
	score := weightTitle * TitleSimilarity(titles, c.Titles())
	if year > 0 && c.Year > 0 && abs(year-c.Year) <= 1 {
		score += weightYear
	}
	if plausibleMediaTypes[strings.ToLower(c.MediaType)] {
		score += weightMediaType
	}
	if c.Episodes > 0 {
		score += weightEpisodes
	}
	return score
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// MappingSearcher searches the mapping store's titles and synonyms.
type MappingSearcher struct {
	Mappings store.MappingStore
}

// Search implements Searcher.
func (s *MappingSearcher) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	entries, err := s.Mappings.SearchByTitle(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, Candidate{
			PrimaryID:   e.PrimaryID,
			SecondaryID: e.SecondaryID,
			Title:       e.Title,
			AltTitles:   e.Metadata.Synonyms,
			Year:        e.Metadata.Year,
			MediaType:   e.Metadata.Type,
			Episodes:    e.Metadata.Episodes,
		})
	}
	return out, nil
}
