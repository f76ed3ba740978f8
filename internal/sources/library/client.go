// Package library is a client for a Jellyfin-compatible media server.
package library

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

	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/ratelimit"
	"github.com/shirosync/shirosync-server/internal/sources"
)

const (
	defaultRPS   = 10.0
	defaultBurst = 20

	defaultPageSize = 500

	seriesFields  = "ProviderIds,Overview,Genres,Studios,OriginalTitle,ProductionYear,RecursiveItemCount"
	episodeFields = "ParentIndexNumber,IndexNumber,SeriesId"
)

// Config configures the client.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	PageSize int
}

// Client reads series, episodes and play markers from the media server.
type Client struct {
	base     *url.URL
	apiKey   string
	pageSize int
	http     *http.Client
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
}

// New creates a client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, domainerrors.Validationf("invalid library url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = sources.DefaultTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:     base,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  ratelimit.New(defaultRPS, defaultBurst),
		logger:   logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// FetchSeries returns every series visible to the user.
func (c *Client) FetchSeries(ctx context.Context, userID string) ([]sources.Series, error) {
	items, err := c.fetchItems(ctx, userID, "Series", seriesFields)
	if err != nil {
		return nil, fmt.Errorf("fetch series: %w", err)
	}
	out := make([]sources.Series, 0, len(items))
	for i := range items {
		out = append(out, items[i].toSeries())
	}
	return out, nil
}

// FetchEpisodes returns every episode with the user's played marker.
func (c *Client) FetchEpisodes(ctx context.Context, userID string) ([]sources.Episode, error) {
	items, err := c.fetchItems(ctx, userID, "Episode", episodeFields)
	if err != nil {
		return nil, fmt.Errorf("fetch episodes: %w", err)
	}
	out := make([]sources.Episode, 0, len(items))
	for _, it := range items {
		if it.SeriesID == "" {
			continue
		}
		out = append(out, sources.Episode{
			ID:       it.ID,
			SeriesID: it.SeriesID,
			Season:   it.ParentIndexNumber,
			Number:   it.IndexNumber,
			Played:   it.UserData.Played,
		})
	}
	return out, nil
}

// ItemDetail returns one series with its full overview.
func (c *Client) ItemDetail(ctx context.Context, userID, itemID string) (*sources.Series, error) {
	q := url.Values{}
	q.Set("Fields", seriesFields)
	body, err := c.get(ctx, c.endpoint(fmt.Sprintf("/Users/%s/Items/%s", url.PathEscape(userID), url.PathEscape(itemID)), q))
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, err)
	}
	var item rawItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidFormat, "decode item")
	}
	s := item.toSeries()
	return &s, nil
}

// fetchItems pages through /Users/{id}/Items until TotalRecordCount is reached.
func (c *Client) fetchItems(ctx context.Context, userID, itemType, fields string) ([]rawItem, error) {
	var out []rawItem
	for start := 0; ; {
		q := url.Values{}
		q.Set("IncludeItemTypes", itemType)
		q.Set("Recursive", "true")
		q.Set("Fields", fields)
		q.Set("StartIndex", strconv.Itoa(start))
		q.Set("Limit", strconv.Itoa(c.pageSize))

		body, err := c.get(ctx, c.endpoint(fmt.Sprintf("/Users/%s/Items", url.PathEscape(userID)), q))
		if err != nil {
			return nil, err
		}
		var page rawItemsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeInvalidFormat, "decode items page")
		}
		out = append(out, page.Items...)
		start += len(page.Items)

		if len(page.Items) == 0 || start >= page.TotalRecordCount {
			break
		}
	}

	c.logger.Debug("library items fetched", "user_id", userID, "type", itemType, "count", len(out))
	return out, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, c.base.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Emby-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domainerrors.FromTransport(err, "library request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.FromTransport(err, "read library response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, sources.StatusError("library", resp.StatusCode, body)
	}
	return body, nil
}

type rawItemsPage struct {
	Items            []rawItem `json:"Items"`
	TotalRecordCount int       `json:"TotalRecordCount"`
}

type rawItem struct {
	ID                 string            `json:"Id"`
	Name               string            `json:"Name"`
	OriginalTitle      string            `json:"OriginalTitle"`
	Overview           string            `json:"Overview"`
	ProductionYear     int               `json:"ProductionYear"`
	Genres             []string          `json:"Genres"`
	Studios            []rawStudio       `json:"Studios"`
	ProviderIDs        map[string]string `json:"ProviderIds"`
	RecursiveItemCount int               `json:"RecursiveItemCount"`
	SeriesID           string            `json:"SeriesId"`
	ParentIndexNumber  int               `json:"ParentIndexNumber"`
	IndexNumber        int               `json:"IndexNumber"`
	UserData           struct {
		Played    bool `json:"Played"`
		PlayCount int  `json:"PlayCount"`
	} `json:"UserData"`
}

type rawStudio struct {
	Name string `json:"Name"`
}

func (it *rawItem) toSeries() sources.Series {
	var studios []string
	for _, s := range it.Studios {
		studios = append(studios, s.Name)
	}
	return sources.Series{
		ID:            it.ID,
		Name:          it.Name,
		OriginalTitle: it.OriginalTitle,
		Overview:      it.Overview,
		Year:          it.ProductionYear,
		Genres:        it.Genres,
		Studios:       studios,
		ProviderIDs:   it.ProviderIDs,
		EpisodeCount:  it.RecursiveItemCount,
	}
}
