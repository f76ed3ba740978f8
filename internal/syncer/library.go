package syncer

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shirosync/shirosync-server/internal/classifier"
	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/normalize"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/sources"
	"github.com/shirosync/shirosync-server/internal/store"
)

// Match methods used only by the library flow.
const (
	MethodSecondaryID matcher.Method = "secondary_id"
	MethodPrimaryID   matcher.Method = "primary_id"
	MethodLibraryID   matcher.Method = "library_id"
	MethodMapping     matcher.Method = "mapping_store"
	MethodCreated     matcher.Method = "created"
)

// LibraryRequest asks for a library-source sync.
type LibraryRequest struct {
	UserID    string
	Force     bool
	Push      bool // push advancing statuses back to the list service
	SessionID string
}

// watchCounts is the per-series aggregate computed from episode markers.
type watchCounts struct {
	watched int
	total   int
}

// SyncLibrary enumerates the library and upserts matched records and derived statuses.
func (o *Orchestrator) SyncLibrary(ctx context.Context, req LibraryRequest) (*Result, error) {
	if o.deps.Library == nil {
		return nil, domainerrors.Validation("library source is not configured")
	}
	if req.UserID == "" {
		return nil, domainerrors.Validation("user id is required")
	}

	started := o.deps.Clock()
	res := &Result{Kind: string(progress.KindLibrary), UserID: req.UserID}
	log := o.deps.Logger.With("session_id", req.SessionID, "user_id", req.UserID)

	o.setMessage(ctx, req.SessionID, "fetching library")
	var (
		series   []sources.Series
		episodes []sources.Episode
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		series, err = o.deps.Library.FetchSeries(gctx, req.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		episodes, err = o.deps.Library.FetchEpisodes(gctx, req.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enumerate library: %w", err)
	}

	counts := aggregate(episodes)
	o.setTotal(ctx, req.SessionID, len(series))
	o.setMessage(ctx, req.SessionID, fmt.Sprintf("syncing %d series", len(series)))
	log.Info("library sync started", "series", len(series), "episodes", len(episodes))

	for i := range series {
		s := series[i]
		err := o.item(ctx, req.SessionID, res, s.Name, s.ID, func() (progress.Outcome, error) {
			return o.syncSeries(ctx, req, s, counts[s.ID], res)
		})
		if err != nil {
			return nil, err
		}
	}

	return o.finish(res, started), nil
}

// aggregate joins episodes to their series. Server-side cached counts are not used.
// Season 0 specials only count when a series has nothing else.
func aggregate(episodes []sources.Episode) map[string]watchCounts {
	type tally struct {
		regular, special watchCounts
	}
	tallies := make(map[string]*tally)
	for _, ep := range episodes {
		t := tallies[ep.SeriesID]
		if t == nil {
			t = &tally{}
			tallies[ep.SeriesID] = t
		}
		c := &t.regular
		if ep.Season == 0 {
			c = &t.special
		}
		c.total++
		if ep.Played {
			c.watched++
		}
	}

	out := make(map[string]watchCounts, len(tallies))
	for id, t := range tallies {
		if t.regular.total > 0 {
			out[id] = t.regular
		} else {
			out[id] = t.special
		}
	}
	return out
}

func (o *Orchestrator) syncSeries(ctx context.Context, req LibraryRequest, s sources.Series, counts watchCounts, res *Result) (progress.Outcome, error) {
	secondary, _ := strconv.Atoi(s.ProviderID(sources.ProviderSecondary))
	primary, _ := strconv.Atoi(s.ProviderID(sources.ProviderPrimary))

	verdict := o.deps.Classifier.Classify(classifier.Subject{
		Title:      s.Name,
		AltTitles:  s.Titles()[1:],
		Genres:     s.Genres,
		Studios:    s.Studios,
		HasAnimeID: secondary > 0 || primary > 0,
	})
	if !verdict.InScope {
		res.NoMatches = append(res.NoMatches, NoMatch{Title: s.Name, SourceID: s.ID, Reason: "out of scope: " + verdict.Reason})
		return progress.OutcomeSkipped, nil
	}

	record, method, confidence, err := o.locateSeries(ctx, s, primary, secondary)
	if err != nil {
		return progress.OutcomeError, err
	}
	if record == nil {
		record = &domain.AnimeRecord{Sync: domain.SyncMeta{Active: true}}
		if primary > 0 {
			record.PrimaryID = &primary
		}
		method, confidence = MethodCreated, 0
		if primary <= 0 && secondary <= 0 {
			res.NoMatches = append(res.NoMatches, NoMatch{Title: s.Name, SourceID: s.ID, Reason: "no match; created local record"})
		}
	}

	now := o.deps.Clock().UTC()
	decision := Freshness(record.Sync.LastLibrarySync, now, o.opts.FreshnessWindow, req.Force || record.ID == "")
	if decision.FullRefresh {
		o.applySeries(ctx, req.UserID, record, s, counts, secondary)
		record.Sync.LastLibrarySync = &now
	}

	created := false
	if decision.FullRefresh || record.Sync.LibraryID != s.ID {
		record.Sync.LibraryID = s.ID
		created, err = o.deps.Records.UpsertRecord(ctx, record)
		if err != nil {
			return progress.OutcomeError, err
		}
	}

	res.Matches = append(res.Matches, MatchOutcome{
		Title:      s.Name,
		SourceID:   s.ID,
		RecordID:   record.ID,
		Method:     method,
		Confidence: confidence,
	})

	var current domain.ListStatus
	var currentStatus *domain.UserListStatus
	if us := record.UserStatus(req.UserID); us != nil {
		cp := *us
		currentStatus = &cp
		current = us.Status
	}
	derived := DeriveStatus(counts.watched, counts.total, current)
	watched := counts.watched
	if _, _, err := o.deps.Records.UpsertUserStatus(ctx, record.ID, req.UserID, domain.UserStatusUpdate{
		Status:          &derived,
		EpisodesWatched: &watched,
	}); err != nil {
		return progress.OutcomeError, err
	}

	if req.Push && o.deps.List != nil && record.PrimaryID != nil {
		if _, err := PushStatus(ctx, o.deps.List, req.UserID, *record.PrimaryID, currentStatus, derived, watched); err != nil {
			if domainerrors.IsAuth(err) {
				return progress.OutcomeError, err
			}
			o.deps.Logger.Warn("status push failed", "title", s.Name, "primary_id", *record.PrimaryID, "error", err)
		}
	}

	if created {
		return progress.OutcomeAdded, nil
	}
	return progress.OutcomeUpdated, nil
}

// locateSeries finds the local record for a library series: secondary id, the
// mapping store, primary id, previously linked library id, then the title matcher.
func (o *Orchestrator) locateSeries(ctx context.Context, s sources.Series, primary, secondary int) (*domain.AnimeRecord, matcher.Method, float64, error) {
	lookups := []struct {
		method matcher.Method
		skip   bool
		find   func() (*domain.AnimeRecord, error)
	}{
		{MethodSecondaryID, secondary <= 0, func() (*domain.AnimeRecord, error) {
			return o.deps.Records.FindRecordByExternalID(ctx, "secondary", strconv.Itoa(secondary))
		}},
		{MethodMapping, secondary <= 0 || o.deps.Mappings == nil, func() (*domain.AnimeRecord, error) {
			return o.recordForMapping(ctx, secondary)
		}},
		{MethodPrimaryID, primary <= 0, func() (*domain.AnimeRecord, error) {
			return o.deps.Records.FindRecordByPrimary(ctx, primary)
		}},
		{MethodLibraryID, false, func() (*domain.AnimeRecord, error) {
			return o.deps.Records.FindRecordByExternalID(ctx, "library", s.ID)
		}},
	}
	for _, l := range lookups {
		if l.skip {
			continue
		}
		r, err := l.find()
		if err == nil {
			return r, l.method, matcher.ConfidenceExact, nil
		}
		if !store.IsNotFound(err) {
			return nil, "", 0, err
		}
	}

	if o.deps.LibraryMatcher == nil {
		return nil, "", 0, nil
	}
	match, err := o.deps.LibraryMatcher.Resolve(ctx, matcher.Descriptor{
		Title:     s.Name,
		AltTitles: s.Titles()[1:],
		Year:      s.Year,
		Genres:    s.Genres,
		Studios:   s.Studios,
	})
	if err != nil || match == nil {
		return nil, "", 0, err
	}

	var r *domain.AnimeRecord
	switch {
	case match.RecordID != "":
		r, err = o.deps.Records.FindRecordByID(ctx, match.RecordID)
	case match.PrimaryID > 0:
		r, err = o.deps.Records.FindRecordByPrimary(ctx, match.PrimaryID)
		if store.IsNotFound(err) {
			pid := match.PrimaryID
			return &domain.AnimeRecord{PrimaryID: &pid, Sync: domain.SyncMeta{Active: true}}, match.Method, match.Confidence, nil
		}
	default:
		return nil, "", 0, nil
	}
	if err != nil {
		if store.IsNotFound(err) {
			return nil, "", 0, nil
		}
		return nil, "", 0, err
	}
	return r, match.Method, match.Confidence, nil
}

// recordForMapping follows a stored primary/secondary pair to the record for the
// primary id. A mapped primary with no record yet yields a new record for it.
func (o *Orchestrator) recordForMapping(ctx context.Context, secondary int) (*domain.AnimeRecord, error) {
	m, err := o.deps.Mappings.FindBySecondary(ctx, secondary)
	if err != nil {
		return nil, err
	}
	if m.PrimaryID <= 0 {
		return nil, store.ErrNotFound
	}
	r, err := o.deps.Records.FindRecordByPrimary(ctx, m.PrimaryID)
	if store.IsNotFound(err) {
		pid := m.PrimaryID
		r, err = &domain.AnimeRecord{PrimaryID: &pid, Sync: domain.SyncMeta{Active: true}}, nil
	}
	if err != nil {
		return nil, err
	}
	r.SetSecondaryID(secondary)
	return r, nil
}

// applySeries fills gaps in the record from library metadata. Fields owned by the
// list source are only written when empty.
func (o *Orchestrator) applySeries(ctx context.Context, userID string, r *domain.AnimeRecord, s sources.Series, counts watchCounts, secondary int) {
	if r.Title == "" {
		r.Title = s.Name
	}
	for _, t := range s.Titles() {
		if t != r.Title && !slices.Contains(r.AltTitles, t) {
			r.AltTitles = append(r.AltTitles, t)
		}
	}
	if r.Year == 0 {
		r.Year = s.Year
	}
	if len(r.Genres) == 0 {
		r.Genres = s.Genres
	}
	if len(r.Studios) == 0 {
		r.Studios = s.Studios
	}
	if r.Episodes == 0 {
		r.Episodes = counts.total
	}
	r.SetSecondaryID(secondary)
	for key, value := range s.ProviderIDs {
		if strings.EqualFold(key, sources.ProviderPrimary) || strings.EqualFold(key, sources.ProviderSecondary) {
			continue
		}
		r.SetExternalID(key, value)
	}

	if r.Synopsis == "" {
		overview := s.Overview
		if overview == "" {
			detail, err := o.deps.Library.ItemDetail(ctx, userID, s.ID)
			if err != nil {
				o.deps.Logger.Debug("item detail unavailable", "series_id", s.ID, "error", err)
			} else {
				overview = detail.Overview
			}
		}
		r.Synopsis = normalize.StripHTML(overview)
	}
	r.Sync.Active = true
}
