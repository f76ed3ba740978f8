package syncer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shirosync/shirosync-server/internal/matcher"
)

// MatchOutcome records how one source item was tied to a local record.
type MatchOutcome struct {
	Title      string         `json:"title"`
	SourceID   string         `json:"sourceId"`
	RecordID   string         `json:"recordId"`
	Method     matcher.Method `json:"method"`
	Confidence float64        `json:"confidence"`
}

// NoMatch records a source item that resolved to nothing.
type NoMatch struct {
	Title    string `json:"title"`
	SourceID string `json:"sourceId"`
	Reason   string `json:"reason"`
}

// ItemError attributes a failure to one item.
type ItemError struct {
	Title string `json:"title"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Result is the outcome of one sync run.
type Result struct {
	Kind       string         `json:"kind"`
	UserID     string         `json:"userId"`
	Processed  int            `json:"processed"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Skipped    int            `json:"skipped"`
	Errors     int            `json:"errors"`
	Matches    []MatchOutcome `json:"matches,omitempty"`
	NoMatches  []NoMatch      `json:"noMatches,omitempty"`
	ItemErrors []ItemError    `json:"itemErrors,omitempty"`
	Summary    string         `json:"summary"`
	Duration   time.Duration  `json:"duration"`
}

func (r *Result) addError(title, id string, err error) {
	r.Errors++
	r.ItemErrors = append(r.ItemErrors, ItemError{Title: title, ID: id, Error: err.Error()})
}

func (r *Result) summarize() {
	var b strings.Builder
	fmt.Fprintf(&b, "%s sync for %s: %d processed, %d created, %d updated, %d skipped, %d errors",
		r.Kind, r.UserID, r.Processed, r.Created, r.Updated, r.Skipped, r.Errors)
	if len(r.Matches) > 0 || len(r.NoMatches) > 0 {
		fmt.Fprintf(&b, " (%d matched, %d unmatched)", len(r.Matches), len(r.NoMatches))
	}
	r.Summary = b.String()
}
