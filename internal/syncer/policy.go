package syncer

import (
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
)

// DefaultFreshnessWindow is how long denormalized fields are trusted after a sync.
const DefaultFreshnessWindow = 24 * time.Hour

// Decision is the per-record freshness verdict.
type Decision struct {
	// Skip leaves denormalized fields alone; only the user status is refreshed.
	Skip        bool
	FullRefresh bool
	Reason      string
}

// Freshness decides whether a record's denormalized fields are re-applied.
// lastSync is the source-specific timestamp (list or library) of the last full refresh.
func Freshness(lastSync *time.Time, now time.Time, window time.Duration, force bool) Decision {
	switch {
	case force:
		return Decision{FullRefresh: true, Reason: "forced"}
	case lastSync == nil:
		return Decision{FullRefresh: true, Reason: "never synced"}
	case window <= 0:
		return Decision{FullRefresh: true, Reason: "no freshness window"}
	case now.Sub(*lastSync) >= window:
		return Decision{FullRefresh: true, Reason: "stale"}
	default:
		return Decision{Skip: true, Reason: "fresh"}
	}
}

// DeriveStatus turns library watch counts into a list status.
// With nothing watched, a status that is already further along than plan_to_watch is kept.
func DeriveStatus(watched, total int, current domain.ListStatus) domain.ListStatus {
	if watched <= 0 {
		switch current {
		case domain.ListStatusWatching, domain.ListStatusCompleted, domain.ListStatusOnHold, domain.ListStatusDropped:
			return current
		}
		return domain.ListStatusPlanToWatch
	}
	if total > 0 && watched >= total {
		return domain.ListStatusCompleted
	}
	return domain.ListStatusWatching
}

var statusRank = map[domain.ListStatus]int{
	domain.ListStatusPlanToWatch: 0,
	domain.ListStatusWatching:    1,
	domain.ListStatusCompleted:   2,
}

// advances reports whether moving from current to derived is forward progress.
// on_hold and dropped are deliberate user choices and are never overridden.
func advances(current, derived domain.ListStatus) bool {
	if current == domain.ListStatusOnHold || current == domain.ListStatusDropped {
		return false
	}
	cur, ok := statusRank[current]
	if !ok {
		cur = -1
	}
	next, ok := statusRank[derived]
	if !ok {
		return false
	}
	return next > cur
}
