package syncer

import (
	"context"

	"github.com/shirosync/shirosync-server/internal/domain"
)

// PushStatus writes a library-derived status back to the list service when it is
// forward progress over the current local status. It never downgrades and never
// touches on_hold or dropped entries. Returns whether an update was sent.
func PushStatus(ctx context.Context, list ListSource, userID string, primaryID int, current *domain.UserListStatus, derived domain.ListStatus, watched int) (bool, error) {
	var cur domain.ListStatus
	curWatched := 0
	if current != nil {
		cur = current.Status
		curWatched = current.EpisodesWatched
	}

	statusForward := advances(cur, derived)
	episodesForward := derived == domain.ListStatusWatching && cur == domain.ListStatusWatching && watched > curWatched
	if !statusForward && !episodesForward {
		return false, nil
	}

	update := domain.UserStatusUpdate{EpisodesWatched: &watched}
	if statusForward {
		update.Status = &derived
	}
	if err := list.UpdateEntry(ctx, userID, primaryID, update); err != nil {
		return false, err
	}
	return true, nil
}
