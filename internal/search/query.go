package search

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/shirosync/shirosync-server/internal/matcher"
)

var _ matcher.Searcher = (*TitleIndex)(nil)

// Search returns active records whose titles match q, best first.
// Match terms tolerate a single typo.
func (t *TitleIndex) Search(ctx context.Context, q string, limit int) ([]matcher.Candidate, error) {
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildTitleQuery(q), limit, 0, false)
	req.Fields = []string{"title", "alt_titles", "media_type", "year", "episodes", "primary_id", "secondary_id"}
	req.SortBy([]string{"-_score", "_id"})

	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	out := make([]matcher.Candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		c := matcher.Candidate{RecordID: hit.ID}
		if v, ok := hit.Fields["title"].(string); ok {
			c.Title = v
		}
		c.AltTitles = stringsField(hit.Fields["alt_titles"])
		if v, ok := hit.Fields["media_type"].(string); ok {
			c.MediaType = v
		}
		c.Year = intField(hit.Fields["year"])
		c.Episodes = intField(hit.Fields["episodes"])
		c.PrimaryID = intField(hit.Fields["primary_id"])
		c.SecondaryID = intField(hit.Fields["secondary_id"])
		out = append(out, c)
	}
	return out, nil
}

func buildTitleQuery(q string) query.Query {
	normalized := bleve.NewMatchQuery(q)
	normalized.SetField("match_titles")
	normalized.SetBoost(3.0)

	fuzzy := bleve.NewMatchQuery(q)
	fuzzy.SetField("match_titles")
	fuzzy.SetFuzziness(1)

	title := bleve.NewMatchQuery(q)
	title.SetField("title")
	title.SetBoost(1.5)

	alt := bleve.NewMatchQuery(q)
	alt.SetField("alt_titles")

	active := bleve.NewBoolFieldQuery(true)
	active.SetField("active")

	return bleve.NewConjunctionQuery(
		bleve.NewDisjunctionQuery(normalized, fuzzy, title, alt),
		active,
	)
}

// stringsField reads a stored multi-value text field, which Bleve returns as
// a string for one value and []any for several.
func stringsField(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intField(v any) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return 0
}
