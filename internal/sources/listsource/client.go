// Package listsource is a client for the remote list-tracking service.
package listsource

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/ratelimit"
	"github.com/shirosync/shirosync-server/internal/sources"
)

const (
	defaultRPS   = 2.0
	defaultBurst = 4

	pageSize       = 100
	maxSearchLimit = 100

	listFields   = "list_status,alternative_titles,genres,studios,media_type,status,num_episodes,synopsis,start_season"
	searchFields = "alternative_titles,media_type,num_episodes,start_season"
)

// Config configures the client.
type Config struct {
	BaseURL  string
	ClientID string // sent on unauthenticated calls such as search
	Timeout  time.Duration
	RPS      float64
}

// Client is a rate-limited list service client.
type Client struct {
	base     *url.URL
	clientID string
	http     *http.Client
	tokens   TokenProvider
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
}

// New creates a client.
func New(cfg Config, tokens TokenProvider, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, domainerrors.Validationf("invalid list source url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = sources.DefaultTimeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:     base,
		clientID: cfg.ClientID,
		http:     &http.Client{Timeout: cfg.Timeout},
		tokens:   tokens,
		limiter:  ratelimit.New(cfg.RPS, defaultBurst),
		logger:   logger,
	}, nil
}

// Tokens returns the provider the client authenticates with.
func (c *Client) Tokens() TokenProvider { return c.tokens }

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// Shutdown is Close with the signature lifecycle containers expect.
func (c *Client) Shutdown() error {
	c.Close()
	return nil
}

// FetchList returns every entry in one status partition of the user's list, following pagination.
func (c *Client) FetchList(ctx context.Context, userID string, status domain.ListStatus) ([]sources.ListEntry, error) {
	token, err := c.tokens.Token(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("status", string(status))
	q.Set("fields", listFields)
	q.Set("limit", strconv.Itoa(pageSize))
	q.Set("nsfw", "true")
	next := c.endpoint("/users/@me/animelist", q)

	var out []sources.ListEntry
	for next != "" {
		body, err := c.do(ctx, http.MethodGet, next, token, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s list: %w", status, err)
		}
		var page rawListPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidFormat, "decode list page")
		}
		for i := range page.Data {
			out = append(out, page.Data[i].toEntry())
		}
		next = page.Paging.Next
	}

	c.logger.Debug("list partition fetched", "user_id", userID, "status", status, "entries", len(out))
	return out, nil
}

// UpdateEntry writes the present fields of update to the user's list entry.
func (c *Client) UpdateEntry(ctx context.Context, userID string, primaryID int, update domain.UserStatusUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	token, err := c.tokens.Token(ctx, userID)
	if err != nil {
		return err
	}

	form := url.Values{}
	if update.Status != nil {
		form.Set("status", string(*update.Status))
	}
	if update.Score != nil {
		form.Set("score", strconv.Itoa(*update.Score))
	}
	if update.EpisodesWatched != nil {
		form.Set("num_watched_episodes", strconv.Itoa(*update.EpisodesWatched))
	}
	if update.IsRewatching != nil {
		form.Set("is_rewatching", strconv.FormatBool(*update.IsRewatching))
	}
	if update.RewatchCount != nil {
		form.Set("num_times_rewatched", strconv.Itoa(*update.RewatchCount))
	}
	if update.Tags != nil {
		form.Set("tags", strings.Join(*update.Tags, ","))
	}
	if update.Comment != nil {
		form.Set("comments", *update.Comment)
	}

	u := c.endpoint(fmt.Sprintf("/anime/%d/my_list_status", primaryID), nil)
	if _, err := c.do(ctx, http.MethodPatch, u, token, strings.NewReader(form.Encode())); err != nil {
		return fmt.Errorf("update entry %d: %w", primaryID, err)
	}
	return nil
}

// Search finds titles by free text. Results carry primary ids.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]matcher.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = 10
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", searchFields)

	body, err := c.do(ctx, http.MethodGet, c.endpoint("/anime", q), "", nil)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	var page rawListPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidFormat, "decode search results")
	}

	out := make([]matcher.Candidate, 0, len(page.Data))
	for _, item := range page.Data {
		n := item.Node
		out = append(out, matcher.Candidate{
			PrimaryID: n.ID,
			Title:     n.Title,
			AltTitles: n.altTitles(),
			Year:      n.StartSeason.Year,
			MediaType: n.MediaType,
			Episodes:  n.NumEpisodes,
		})
	}
	return out, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do executes a request with rate limiting and maps failures to domain errors.
func (c *Client) do(ctx context.Context, method, rawURL, token string, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx, c.base.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "shirosync/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.clientID != "" {
		req.Header.Set("X-MAL-CLIENT-ID", c.clientID)
	}

	c.logger.Debug("list source request", "method", method, "url", rawURL)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domainerrors.FromTransport(err, "list source request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.FromTransport(err, "read list source response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, sources.StatusError("list source", resp.StatusCode, respBody)
	}
	return respBody, nil
}
