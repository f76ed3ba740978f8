package listsource

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shirosync/shirosync-server/internal/domain"
	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/sources"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL + "/v2", ClientID: "client-123", RPS: 100},
		NewStaticTokens(map[string]string{"alice": "tok-alice"}),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, server
}

func TestClient_FetchList_FollowsPaging(t *testing.T) {
	var server *httptest.Server
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/users/@me/animelist", r.URL.Path)
		assert.Equal(t, "Bearer tok-alice", r.Header.Get("Authorization"))
		assert.Equal(t, "watching", r.URL.Query().Get("status"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") == "" {
			next := server.URL + "/v2/users/@me/animelist?status=watching&offset=1"
			io.WriteString(w, `{"data":[{"node":{"id":1,"title":"Cowboy Bebop","alternative_titles":{"synonyms":["Bebop"],"en":"Cowboy Bebop","ja":"カウボーイビバップ"},
				"genres":[{"id":1,"name":"Action"}],"studios":[{"id":14,"name":"Sunrise"}],"media_type":"tv","status":"finished_airing",
				"num_episodes":26,"synopsis":"<p>Space bounty hunters</p>","start_season":{"year":1998}},
				"list_status":{"status":"watching","score":9,"num_episodes_watched":12,"is_rewatching":false}}],
				"paging":{"next":"`+next+`"}}`)
			return
		}
		io.WriteString(w, `{"data":[{"node":{"id":30,"title":"Neon Genesis Evangelion"},"list_status":{"status":"watching","num_episodes_watched":3}}],"paging":{}}`)
	})

	entries, err := client.FetchList(context.Background(), "alice", domain.ListStatusWatching)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	bebop := entries[0]
	assert.Equal(t, 1, bebop.PrimaryID)
	assert.Equal(t, []string{"カウボーイビバップ", "Bebop"}, bebop.AltTitles)
	assert.Equal(t, []string{"Action"}, bebop.Genres)
	assert.Equal(t, []string{"Sunrise"}, bebop.Studios)
	assert.Equal(t, 1998, bebop.Year)
	require.NotNil(t, bebop.User.Score)
	assert.Equal(t, 9, *bebop.User.Score)
	assert.Equal(t, domain.ListStatusWatching, *bebop.User.Status)

	eva := entries[1]
	assert.Nil(t, eva.User.Score, "absent fields stay absent")
	assert.Nil(t, eva.User.Tags)
	assert.Equal(t, 3, *eva.User.EpisodesWatched)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_token"}`, func(t *testing.T, err error) {
			assert.True(t, domainerrors.Is(err, domainerrors.ErrUnauthorized))
			assert.True(t, domainerrors.IsAuth(err))
		}},
		{"expired token", http.StatusUnauthorized, `{"error":"token expired"}`, func(t *testing.T, err error) {
			assert.True(t, domainerrors.Is(err, domainerrors.ErrTokenExpired))
		}},
		{"forbidden", http.StatusForbidden, ``, func(t *testing.T, err error) {
			assert.True(t, domainerrors.Is(err, domainerrors.ErrTokenExpired))
		}},
		{"not found", http.StatusNotFound, ``, func(t *testing.T, err error) {
			assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
		}},
		{"rate limited", http.StatusTooManyRequests, ``, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, sources.ErrRateLimited))
			assert.True(t, domainerrors.IsSoft(err))
		}},
		{"server error", http.StatusBadGateway, `upstream down`, func(t *testing.T, err error) {
			assert.True(t, domainerrors.Is(err, domainerrors.ErrNetworkFailure))
			assert.Contains(t, err.Error(), "upstream down")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := client.FetchList(context.Background(), "alice", domain.ListStatusCompleted)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_MissingToken(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.FetchList(context.Background(), "bob", domain.ListStatusWatching)
	require.Error(t, err)
	assert.True(t, domainerrors.IsAuth(err))
	assert.False(t, called)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond, RPS: 100},
		NewStaticTokens(map[string]string{"alice": "tok"}), nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	_, err = client.FetchList(context.Background(), "alice", domain.ListStatusWatching)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrTimeout))
}

func TestClient_UpdateEntry(t *testing.T) {
	var got url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v2/anime/30/my_list_status", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		got = r.PostForm
		io.WriteString(w, `{}`)
	})

	status := domain.ListStatusCompleted
	watched := 26
	err := client.UpdateEntry(context.Background(), "alice", 30, domain.UserStatusUpdate{Status: &status, EpisodesWatched: &watched})
	require.NoError(t, err)

	assert.Equal(t, "completed", got.Get("status"))
	assert.Equal(t, "26", got.Get("num_watched_episodes"))
	assert.False(t, got.Has("score"))
}

func TestClient_UpdateEntry_EmptyIsNoop(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	assert.NoError(t, client.UpdateEntry(context.Background(), "alice", 1, domain.UserStatusUpdate{}))
}

func TestClient_Search(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/anime", r.URL.Path)
		assert.Equal(t, "bebop", r.URL.Query().Get("q"))
		assert.Equal(t, "client-123", r.Header.Get("X-MAL-CLIENT-ID"))
		assert.Empty(t, r.Header.Get("Authorization"))
		io.WriteString(w, `{"data":[{"node":{"id":1,"title":"Cowboy Bebop","media_type":"tv","num_episodes":26,"start_season":{"year":1998}}}]}`)
	})

	got, err := client.Search(context.Background(), " bebop ", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].PrimaryID)
	assert.Equal(t, 1998, got[0].Year)
	assert.Equal(t, "tv", got[0].MediaType)

	none, err := client.Search(context.Background(), "  ", 5)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEnvTokens(t *testing.T) {
	t.Setenv("LIST_TOKEN_USER_1", "secret")

	tok, err := EnvTokens{}.Token(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "secret", tok)

	_, err = EnvTokens{}.Token(context.Background(), "user-2")
	assert.True(t, domainerrors.IsAuth(err))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"}, NewStaticTokens(nil), nil)
	assert.Error(t, err)
}
