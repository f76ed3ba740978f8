package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirosync/shirosync-server/internal/domain"
)

func TestPushStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  *domain.UserListStatus
		derived  domain.ListStatus
		watched  int
		wantSent bool
		wantStat bool
	}{
		{"no local status", nil, domain.ListStatusWatching, 3, true, true},
		{"watching to completed", &domain.UserListStatus{Status: domain.ListStatusWatching, EpisodesWatched: 10}, domain.ListStatusCompleted, 12, true, true},
		{"more episodes while watching", &domain.UserListStatus{Status: domain.ListStatusWatching, EpisodesWatched: 3}, domain.ListStatusWatching, 5, true, false},
		{"same episodes", &domain.UserListStatus{Status: domain.ListStatusWatching, EpisodesWatched: 5}, domain.ListStatusWatching, 5, false, false},
		{"never downgrades completed", &domain.UserListStatus{Status: domain.ListStatusCompleted, EpisodesWatched: 12}, domain.ListStatusWatching, 4, false, false},
		{"on hold untouched", &domain.UserListStatus{Status: domain.ListStatusOnHold, EpisodesWatched: 2}, domain.ListStatusCompleted, 12, false, false},
		{"dropped untouched", &domain.UserListStatus{Status: domain.ListStatusDropped}, domain.ListStatusWatching, 1, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := &fakeList{}
			sent, err := PushStatus(context.Background(), list, "alice", 7, tt.current, tt.derived, tt.watched)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSent, sent)

			updates := list.sent()
			if !tt.wantSent {
				assert.Empty(t, updates)
				return
			}
			require.Len(t, updates, 1)
			assert.Equal(t, 7, updates[0].primaryID)
			assert.Equal(t, tt.watched, *updates[0].update.EpisodesWatched)
			assert.Equal(t, tt.wantStat, updates[0].update.Status != nil)
		})
	}
}
