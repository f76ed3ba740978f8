// Package matcher resolves an anime described by one source to its identity in another.
//
// Resolution runs an ordered cascade of strategies. The first strategy that
// produces a match wins; a failing strategy is logged and the cascade moves on.
// When every strategy comes up empty the result is "no match", never an error.
package matcher

import (
	"context"
	"strconv"
)

// Method names the strategy that produced a match.
type Method string

const (
	MethodDirect   Method = "direct"
	MethodStore    Method = "mapping_store"
	MethodExternal Method = "external"
	MethodFuzzy    Method = "fuzzy_title"
)

// Confidence levels for the non-fuzzy stages.
const (
	ConfidenceExact    = 1.0
	ConfidenceExternal = 0.9
)

// Descriptor is what the caller knows about a title.
type Descriptor struct {
	Title       string   `json:"title"`
	AltTitles   []string `json:"altTitles,omitempty"`
	Year        int      `json:"year,omitempty"`
	PrimaryID   *int     `json:"primaryId,omitempty"`
	SecondaryID *int     `json:"secondaryId,omitempty"`
	MediaType   string   `json:"mediaType,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Studios     []string `json:"studios,omitempty"`
	Episodes    int      `json:"episodes,omitempty"`
}

// knownID renders the strongest identity the descriptor carries, for cache keys.
func (d Descriptor) knownID() string {
	switch {
	case d.SecondaryID != nil:
		return "s" + strconv.Itoa(*d.SecondaryID)
	case d.PrimaryID != nil:
		return "p" + strconv.Itoa(*d.PrimaryID)
	}
	return ""
}

// Candidate is one search hit. Searchers fill whichever identities they know.
type Candidate struct {
	RecordID    string   `json:"recordId,omitempty"`
	PrimaryID   int      `json:"primaryId,omitempty"`
	SecondaryID int      `json:"secondaryId,omitempty"`
	Title       string   `json:"title"`
	AltTitles   []string `json:"altTitles,omitempty"`
	Year        int      `json:"year,omitempty"`
	MediaType   string   `json:"mediaType,omitempty"`
	Episodes    int      `json:"episodes,omitempty"`
}

// Titles returns the main title followed by the alternates.
func (c Candidate) Titles() []string {
	return append([]string{c.Title}, c.AltTitles...)
}

// Match is a resolved identity.
type Match struct {
	SecondaryID int        `json:"secondaryId,omitempty"`
	PrimaryID   int        `json:"primaryId,omitempty"`
	RecordID    string     `json:"recordId,omitempty"`
	Title       string     `json:"title,omitempty"`
	Confidence  float64    `json:"confidence"`
	Method      Method     `json:"method"`
	Candidate   *Candidate `json:"candidate,omitempty"`
}

// Strategy is one stage of the cascade.
// Attempt returns (nil, nil) when the stage has nothing to offer.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, d Descriptor) (*Match, error)
}

// Searcher issues a title search against the target identity space.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// ExternalSource is a bulk id-mapping service consulted by primary id.
type ExternalSource interface {
	Name() string
	LookupSecondary(ctx context.Context, primaryID int) (secondaryID int, found bool, err error)
}
