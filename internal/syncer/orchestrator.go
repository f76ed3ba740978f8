// Package syncer reconciles list and library state into local anime records.
//
// Every run enumerates its source once, then processes items strictly in order.
// A failing item is recorded and skipped; only a failed enumeration or a
// credential error aborts the run.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirosync/shirosync-server/internal/classifier"
	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/sources"
	"github.com/shirosync/shirosync-server/internal/store"
)

// ListSource is the remote list-tracking service.
type ListSource interface {
	FetchList(ctx context.Context, userID string, status domain.ListStatus) ([]sources.ListEntry, error)
	UpdateEntry(ctx context.Context, userID string, primaryID int, update domain.UserStatusUpdate) error
	Search(ctx context.Context, query string, limit int) ([]matcher.Candidate, error)
}

// LibrarySource is the media-library server.
type LibrarySource interface {
	FetchSeries(ctx context.Context, userID string) ([]sources.Series, error)
	FetchEpisodes(ctx context.Context, userID string) ([]sources.Episode, error)
	ItemDetail(ctx context.Context, userID, itemID string) (*sources.Series, error)
}

// Deps are the orchestrator's collaborators. List and Library may be nil when
// the corresponding flow is not configured.
type Deps struct {
	Records  store.RecordStore
	Mappings store.MappingStore
	// Matcher resolves secondary ids for list enrichment.
	Matcher *matcher.Matcher
	// LibraryMatcher resolves library series to records by title.
	LibraryMatcher *matcher.Matcher
	List           ListSource
	Library        LibrarySource
	Progress       *progress.Tracker
	Classifier     classifier.Classifier
	Clock          func() time.Time
	Logger         *slog.Logger
}

// Options tune the orchestrator.
type Options struct {
	FreshnessWindow time.Duration
	UserPause       time.Duration
	Statuses        []domain.ListStatus
}

// Orchestrator runs list and library syncs.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New creates an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.AllowAll{}
	}
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}
	if opts.UserPause <= 0 {
		opts.UserPause = DefaultUserPause
	}
	if len(opts.Statuses) == 0 {
		opts.Statuses = domain.AllListStatuses
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// HasList reports whether a list source is configured.
func (o *Orchestrator) HasList() bool { return o.deps.List != nil }

// HasLibrary reports whether a library source is configured.
func (o *Orchestrator) HasLibrary() bool { return o.deps.Library != nil }

// item runs fn for one entry. Panics and errors are attributed to the entry and
// counted; an auth error or a cancelled context is returned to abort the run.
func (o *Orchestrator) item(ctx context.Context, sessionID string, res *Result, title, id string, fn func() (progress.Outcome, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	outcome, err := o.safely(fn)
	res.Processed++

	if err != nil {
		if domainerrors.IsAuth(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.addError(title, id, err)
		outcome = progress.OutcomeError
		o.deps.Logger.Warn("sync item failed", "session_id", sessionID, "title", title, "id", id, "error", err)
	}

	switch outcome {
	case progress.OutcomeAdded:
		res.Created++
	case progress.OutcomeUpdated:
		res.Updated++
	case progress.OutcomeSkipped:
		res.Skipped++
	}

	o.report(ctx, sessionID, title, outcome)
	return nil
}

func (o *Orchestrator) safely(fn func() (progress.Outcome, error)) (outcome progress.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = progress.OutcomeError, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (o *Orchestrator) report(ctx context.Context, sessionID, label string, outcome progress.Outcome) {
	if sessionID == "" || o.deps.Progress == nil {
		return
	}
	if _, err := o.deps.Progress.RecordItem(ctx, sessionID, label, outcome); err != nil {
		o.deps.Logger.Debug("progress update failed", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) setTotal(ctx context.Context, sessionID string, total int) {
	if sessionID == "" || o.deps.Progress == nil {
		return
	}
	if _, err := o.deps.Progress.SetTotal(ctx, sessionID, total); err != nil {
		o.deps.Logger.Debug("progress update failed", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) setMessage(ctx context.Context, sessionID, msg string) {
	if sessionID == "" || o.deps.Progress == nil {
		return
	}
	if _, err := o.deps.Progress.SetMessage(ctx, sessionID, msg); err != nil {
		o.deps.Logger.Debug("progress update failed", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) finish(res *Result, started time.Time) *Result {
	res.Duration = o.deps.Clock().Sub(started)
	res.summarize()
	o.deps.Logger.Info("sync finished",
		"kind", res.Kind,
		"user_id", res.UserID,
		"processed", res.Processed,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"errors", res.Errors,
	)
	return res
}
