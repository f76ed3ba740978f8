// Package domain holds the anime records, list statuses and id mappings shared by the sync engine.
package domain

import (
	"slices"
	"strings"
	"time"
)

// ListStatus is a user's state for one title on the list service.
type ListStatus string

const (
	ListStatusWatching    ListStatus = "watching"
	ListStatusCompleted   ListStatus = "completed"
	ListStatusOnHold      ListStatus = "on_hold"
	ListStatusDropped     ListStatus = "dropped"
	ListStatusPlanToWatch ListStatus = "plan_to_watch"
)

// AllListStatuses is the partition order used when fetching a user's list.
var AllListStatuses = []ListStatus{
	ListStatusWatching,
	ListStatusCompleted,
	ListStatusOnHold,
	ListStatusDropped,
	ListStatusPlanToWatch,
}

// Valid reports whether s is a known status.
func (s ListStatus) Valid() bool {
	return slices.Contains(AllListStatuses, s)
}

// ParseListStatus normalizes loose spellings ("On Hold", "plan-to-watch") to a ListStatus.
func ParseListStatus(raw string) (ListStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	st := ListStatus(s)
	return st, st.Valid()
}

// ExternalIDs is the set of identities a record is known by outside the primary space.
type ExternalIDs struct {
	Secondary *int              `json:"secondary,omitempty"`
	Others    map[string]string `json:"others,omitempty"`
}

// SyncMeta tracks when each source last refreshed the record's denormalized fields.
type SyncMeta struct {
	LastListSync    *time.Time `json:"lastListSync,omitempty"`
	LastLibrarySync *time.Time `json:"lastLibrarySync,omitempty"`
	LibraryID       string     `json:"libraryId,omitempty"`
	Version         int        `json:"version"`
	Active          bool       `json:"active"`
}

// AnimeRecord is the local union of everything the sources say about one title.
type AnimeRecord struct {
	ID          string           `json:"id"`
	PrimaryID   *int             `json:"primaryId,omitempty"`
	ExternalIDs ExternalIDs      `json:"externalIds"`
	Title       string           `json:"title"`
	AltTitles   []string         `json:"altTitles,omitempty"`
	Genres      []string         `json:"genres,omitempty"`
	Studios     []string         `json:"studios,omitempty"`
	MediaType   string           `json:"mediaType,omitempty"`
	Episodes    int              `json:"episodes"`
	Status      string           `json:"status,omitempty"`
	Year        int              `json:"year,omitempty"`
	Synopsis    string           `json:"synopsis,omitempty"`
	Sync        SyncMeta         `json:"sync"`
	Users       []UserListStatus `json:"users,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// UserStatus returns the embedded status for userID, or nil.
func (r *AnimeRecord) UserStatus(userID string) *UserListStatus {
	for i := range r.Users {
		if r.Users[i].UserID == userID {
			return &r.Users[i]
		}
	}
	return nil
}

// SetSecondaryID merges id into the external-id set.
// An existing non-null secondary id is never replaced; the return value reports whether anything changed.
func (r *AnimeRecord) SetSecondaryID(id int) bool {
	if id <= 0 || r.ExternalIDs.Secondary != nil {
		return false
	}
	r.ExternalIDs.Secondary = &id
	return true
}

// SetExternalID records an identity in a taxonomy other than primary/secondary.
func (r *AnimeRecord) SetExternalID(kind, value string) {
	if value == "" {
		return
	}
	if r.ExternalIDs.Others == nil {
		r.ExternalIDs.Others = make(map[string]string)
	}
	r.ExternalIDs.Others[kind] = value
}

// Titles returns the main title followed by the alternates.
func (r *AnimeRecord) Titles() []string {
	return append([]string{r.Title}, r.AltTitles...)
}

// UserListStatus is one user's state against one record.
type UserListStatus struct {
	UserID          string     `json:"userId"`
	Status          ListStatus `json:"status"`
	Score           int        `json:"score"`
	EpisodesWatched int        `json:"episodesWatched"`
	IsRewatching    bool       `json:"isRewatching"`
	RewatchCount    int        `json:"rewatchCount"`
	Tags            []string   `json:"tags,omitempty"`
	Comment         string     `json:"comment,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// UserStatusUpdate carries only the fields an incoming update actually specified.
// Nil fields leave the stored value untouched.
type UserStatusUpdate struct {
	Status          *ListStatus
	Score           *int
	EpisodesWatched *int
	IsRewatching    *bool
	RewatchCount    *int
	Tags            *[]string
	Comment         *string
}

// IsEmpty reports whether the update specifies no fields.
func (u UserStatusUpdate) IsEmpty() bool {
	return u.Status == nil && u.Score == nil && u.EpisodesWatched == nil &&
		u.IsRewatching == nil && u.RewatchCount == nil && u.Tags == nil && u.Comment == nil
}

// ApplyTo copies the present fields onto s and reports whether any value changed.
func (u UserStatusUpdate) ApplyTo(s *UserListStatus) bool {
	changed := false
	if u.Status != nil && *u.Status != s.Status {
		s.Status, changed = *u.Status, true
	}
	if u.Score != nil && *u.Score != s.Score {
		s.Score, changed = *u.Score, true
	}
	if u.EpisodesWatched != nil && *u.EpisodesWatched != s.EpisodesWatched {
		s.EpisodesWatched, changed = *u.EpisodesWatched, true
	}
	if u.IsRewatching != nil && *u.IsRewatching != s.IsRewatching {
		s.IsRewatching, changed = *u.IsRewatching, true
	}
	if u.RewatchCount != nil && *u.RewatchCount != s.RewatchCount {
		s.RewatchCount, changed = *u.RewatchCount, true
	}
	if u.Tags != nil && !slices.Equal(*u.Tags, s.Tags) {
		s.Tags, changed = slices.Clone(*u.Tags), true
	}
	if u.Comment != nil && *u.Comment != s.Comment {
		s.Comment, changed = *u.Comment, true
	}
	return changed
}
