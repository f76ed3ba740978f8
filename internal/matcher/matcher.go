package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/store"
)

// Matcher runs the strategy cascade behind a result cache.
type Matcher struct {
	strategies []Strategy
	cache      *Cache
	group      singleflight.Group
	anomalies  store.AnomalyStore
	logger     *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithCache replaces the default private cache.
func WithCache(c *Cache) Option {
	return func(m *Matcher) { m.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// WithAnomalyStore exposes recorded anomalies through Anomalies.
func WithAnomalyStore(s store.AnomalyStore) Option {
	return func(m *Matcher) { m.anomalies = s }
}

// New creates a Matcher that tries strategies in the given order.
func New(strategies []Strategy, opts ...Option) *Matcher {
	m := &Matcher{
		strategies: strategies,
		cache:      NewCache(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// errAborted marks a shared cascade cut short by the cancelled context of the
// caller that started it.
var errAborted = errors.New("match cascade aborted")

// Resolve returns the best match for d, or nil when no stage finds one.
// It only returns an error when ctx is done.
func (m *Matcher) Resolve(ctx context.Context, d Descriptor) (*Match, error) {
	key := CacheKey(d)
	if hit, ok := m.cache.Get(key); ok {
		return hit, nil
	}

	for {
		v, err, _ := m.group.Do(key, func() (any, error) {
			match, err := m.cascade(ctx, d)
			if err != nil {
				return nil, errAborted
			}
			m.cache.Put(key, match)
			return match, nil
		})
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Joined a run whose owner went away; ours is still live, so run again.
		if errors.Is(err, errAborted) {
			continue
		}
		if err != nil {
			return nil, err
		}

		match, _ := v.(*Match)
		if match == nil {
			return nil, nil
		}
		out := *match
		return &out, nil
	}
}

// cascade returns the first stage's match. The error is non-nil only when ctx
// ended before every stage had a chance to run.
func (m *Matcher) cascade(ctx context.Context, d Descriptor) (*Match, error) {
	for _, s := range m.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		match, err := m.attempt(ctx, s, d)
		if err != nil {
			m.logger.Warn("match strategy failed",
				"strategy", s.Name(),
				"title", d.Title,
				"error", err,
			)
			continue
		}
		if match != nil {
			m.logger.Debug("match resolved",
				"strategy", s.Name(),
				"title", d.Title,
				"confidence", match.Confidence,
			)
			return match, nil
		}
	}
	return nil, ctx.Err()
}

// attempt runs one strategy, converting a panic into an error for that stage.
func (m *Matcher) attempt(ctx context.Context, s Strategy, d Descriptor) (match *Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			match, err = nil, fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Attempt(ctx, d)
}

// ClearCache drops every cached result.
func (m *Matcher) ClearCache() int {
	return m.cache.Clear()
}

// CacheStats reports the cache contents.
func (m *Matcher) CacheStats() CacheStats {
	return m.cache.Stats()
}

// Anomalies lists recorded divergences, newest first.
func (m *Matcher) Anomalies(ctx context.Context, limit int) ([]domain.MatchAnomaly, error) {
	if m.anomalies == nil {
		return nil, nil
	}
	return m.anomalies.ListAnomalies(ctx, limit)
}

// Strategies returns the strategy names in cascade order.
func (m *Matcher) Strategies() []string {
	names := make([]string, 0, len(m.strategies))
	for _, s := range m.strategies {
		names = append(names, s.Name())
	}
	return names
}
