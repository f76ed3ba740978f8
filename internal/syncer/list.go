package syncer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shirosync/shirosync-server/internal/classifier"
	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/normalize"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/sources"
	"github.com/shirosync/shirosync-server/internal/store"
)

// ListRequest asks for a list-source sync.
type ListRequest struct {
	UserID    string
	Statuses  []domain.ListStatus // empty means every partition
	Force     bool                // ignore the freshness window
	Enrich    bool                // resolve missing secondary ids
	SessionID string              // progress session, optional
}

// SyncList pulls the user's list and upserts records and statuses.
func (o *Orchestrator) SyncList(ctx context.Context, req ListRequest) (*Result, error) {
	if o.deps.List == nil {
		return nil, domainerrors.Validation("list source is not configured")
	}
	if req.UserID == "" {
		return nil, domainerrors.Validation("user id is required")
	}

	started := o.deps.Clock()
	res := &Result{Kind: string(progress.KindList), UserID: req.UserID}
	log := o.deps.Logger.With("session_id", req.SessionID, "user_id", req.UserID)

	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = o.opts.Statuses
	}

	o.setMessage(ctx, req.SessionID, "fetching list")
	var (
		entries []sources.ListEntry
		failed  int
		lastErr error
	)
	for _, status := range statuses {
		part, err := o.deps.List.FetchList(ctx, req.UserID, status)
		if err != nil {
			if domainerrors.IsAuth(err) || ctx.Err() != nil {
				return nil, err
			}
			failed++
			lastErr = err
			res.addError("partition "+string(status), string(status), err)
			log.Warn("list partition failed", "status", status, "error", err)
			continue
		}
		entries = append(entries, part...)
	}
	if failed == len(statuses) {
		return nil, fmt.Errorf("fetch list: every partition failed: %w", lastErr)
	}

	o.setTotal(ctx, req.SessionID, len(entries))
	o.setMessage(ctx, req.SessionID, fmt.Sprintf("syncing %d entries", len(entries)))
	log.Info("list sync started", "entries", len(entries), "partitions", len(statuses), "failed_partitions", failed)

	for i := range entries {
		e := entries[i]
		err := o.item(ctx, req.SessionID, res, e.Title, strconv.Itoa(e.PrimaryID), func() (progress.Outcome, error) {
			return o.syncListEntry(ctx, req, e, res)
		})
		if err != nil {
			return nil, err
		}
	}

	return o.finish(res, started), nil
}

func (o *Orchestrator) syncListEntry(ctx context.Context, req ListRequest, e sources.ListEntry, res *Result) (progress.Outcome, error) {
	if e.PrimaryID <= 0 {
		return progress.OutcomeError, domainerrors.InvalidFormat("list entry has no id")
	}

	verdict := o.deps.Classifier.Classify(classifier.Subject{
		Title:      e.Title,
		AltTitles:  e.AltTitles,
		Genres:     e.Genres,
		Studios:    e.Studios,
		MediaType:  e.MediaType,
		HasAnimeID: true,
	})
	if !verdict.InScope {
		return progress.OutcomeSkipped, nil
	}

	now := o.deps.Clock().UTC()
	record, err := o.deps.Records.FindRecordByPrimary(ctx, e.PrimaryID)
	isNew := false
	switch {
	case store.IsNotFound(err):
		pid := e.PrimaryID
		record = &domain.AnimeRecord{PrimaryID: &pid, Sync: domain.SyncMeta{Active: true}}
		isNew = true
	case err != nil:
		return progress.OutcomeError, err
	}

	decision := Freshness(record.Sync.LastListSync, now, o.opts.FreshnessWindow, req.Force || isNew)
	dirty := false
	if decision.FullRefresh {
		applyListEntry(record, e)
		record.Sync.LastListSync = &now
		dirty = true
	}

	var enriched *matcher.Match
	if req.Enrich && record.ExternalIDs.Secondary == nil && o.deps.Matcher != nil {
		match, err := o.deps.Matcher.Resolve(ctx, listDescriptor(e))
		if err != nil {
			return progress.OutcomeError, err
		}
		switch {
		case match == nil:
			res.NoMatches = append(res.NoMatches, NoMatch{Title: e.Title, SourceID: strconv.Itoa(e.PrimaryID), Reason: "no secondary id found"})
		case record.SetSecondaryID(match.SecondaryID):
			enriched = match
			dirty = true
		}
	}

	created := false
	if dirty {
		created, err = o.deps.Records.UpsertRecord(ctx, record)
		if err != nil {
			return progress.OutcomeError, err
		}
	}
	if enriched != nil {
		res.Matches = append(res.Matches, MatchOutcome{
			Title:      e.Title,
			SourceID:   strconv.Itoa(e.PrimaryID),
			RecordID:   record.ID,
			Method:     enriched.Method,
			Confidence: enriched.Confidence,
		})
	}

	statusTouched := false
	if !e.User.IsEmpty() {
		if _, _, err := o.deps.Records.UpsertUserStatus(ctx, record.ID, req.UserID, e.User); err != nil {
			return progress.OutcomeError, err
		}
		statusTouched = true
	}

	switch {
	case created:
		return progress.OutcomeAdded, nil
	case dirty || statusTouched:
		return progress.OutcomeUpdated, nil
	default:
		return progress.OutcomeSkipped, nil
	}
}

func applyListEntry(r *domain.AnimeRecord, e sources.ListEntry) {
	if e.Title != "" {
		r.Title = e.Title
	}
	r.AltTitles = e.AltTitles
	r.Genres = e.Genres
	r.Studios = e.Studios
	r.MediaType = e.MediaType
	r.Status = e.AiringStatus
	r.Episodes = e.Episodes
	if e.Year > 0 {
		r.Year = e.Year
	}
	if e.Synopsis != "" {
		r.Synopsis = normalize.Synopsis(e.Synopsis)
	}
	r.Sync.Active = true
}

func listDescriptor(e sources.ListEntry) matcher.Descriptor {
	pid := e.PrimaryID
	return matcher.Descriptor{
		Title:     e.Title,
		AltTitles: e.AltTitles,
		Year:      e.Year,
		PrimaryID: &pid,
		MediaType: e.MediaType,
		Genres:    e.Genres,
		Studios:   e.Studios,
		Episodes:  e.Episodes,
	}
}
