// Package sources holds the shapes shared by the upstream source clients.
package sources

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 15 * time.Second

// ErrRateLimited is the cause attached when an upstream answers 429.
var ErrRateLimited = errors.New("rate limited by upstream")

// ListEntry is one title on a user's list, as the list service reports it.
type ListEntry struct {
	PrimaryID    int
	Title        string
	AltTitles    []string
	Genres       []string
	Studios      []string
	MediaType    string
	AiringStatus string
	Episodes     int
	Year         int
	Synopsis     string // may contain HTML

	// User holds only the status fields the service actually returned.
	User domain.UserStatusUpdate
}

// Provider id keys as media servers report them.
const (
	ProviderPrimary   = "MyAnimeList"
	ProviderSecondary = "AniList"
)

// Series is a show in the media library.
type Series struct {
	ID            string
	Name          string
	OriginalTitle string
	Overview      string // may contain HTML
	Year          int
	Genres        []string
	Studios       []string
	ProviderIDs   map[string]string
	// EpisodeCount is the server's cached count. Sync recomputes from episodes instead.
	EpisodeCount int
}

// ProviderID looks up a provider id case-insensitively.
func (s *Series) ProviderID(key string) string {
	if v, ok := s.ProviderIDs[key]; ok {
		return v
	}
	for k, v := range s.ProviderIDs {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Titles returns the name plus the original title when it differs.
func (s *Series) Titles() []string {
	out := []string{s.Name}
	if s.OriginalTitle != "" && s.OriginalTitle != s.Name {
		out = append(out, s.OriginalTitle)
	}
	return out
}

// Episode is one episode in the media library with the user's play marker.
type Episode struct {
	ID       string
	SeriesID string
	Season   int
	Number   int
	Played   bool
}

// StatusError maps an unsuccessful HTTP status to a domain error.
func StatusError(source string, status int, body []byte) error {
	msg := fmt.Sprintf("%s: status %d", source, status)
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		msg += ": " + snippet
	}

	switch {
	case status == http.StatusUnauthorized:
		if strings.Contains(strings.ToLower(string(body)), "expired") {
			return domainerrors.TokenExpired(msg)
		}
		return domainerrors.Unauthorized(msg)
	case status == http.StatusForbidden:
		return domainerrors.TokenExpired(msg)
	case status == http.StatusNotFound:
		return domainerrors.NotFound(msg)
	case status == http.StatusTooManyRequests:
		return domainerrors.NetworkFailure(ErrRateLimited, msg)
	case status == http.StatusBadRequest:
		return domainerrors.Validation(msg)
	case status >= 500:
		return domainerrors.NetworkFailure(nil, msg)
	default:
		return domainerrors.Internal(msg)
	}
}
