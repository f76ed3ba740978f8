package library

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

func newTestClient(t *testing.T, pageSize int, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL, APIKey: "key-1", PageSize: pageSize}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestClient_FetchSeries(t *testing.T) {
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Users/u1/Items", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-Emby-Token"))
		assert.Equal(t, "Series", r.URL.Query().Get("IncludeItemTypes"))
		io.WriteString(w, `{"Items":[{"Id":"s1","Name":"Cowboy Bebop","OriginalTitle":"カウボーイビバップ","Overview":"<b>Space</b>",
			"ProductionYear":1998,"Genres":["Action"],"Studios":[{"Name":"Sunrise"}],"ProviderIds":{"AniList":"1","Tvdb":"76885"},"RecursiveItemCount":26}],
			"TotalRecordCount":1}`)
	})

	series, err := client.FetchSeries(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, series, 1)

	s := series[0]
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, []string{"Sunrise"}, s.Studios)
	assert.Equal(t, "1", s.ProviderID("anilist"))
	assert.Equal(t, "", s.ProviderID("MyAnimeList"))
	assert.Equal(t, []string{"Cowboy Bebop", "カウボーイビバップ"}, s.Titles())
	assert.Equal(t, 26, s.EpisodeCount)
}

func TestClient_FetchEpisodes_Pages(t *testing.T) {
	requests := 0
	client := newTestClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		requests++
		start, _ := strconv.Atoi(r.URL.Query().Get("StartIndex"))
		assert.Equal(t, "2", r.URL.Query().Get("Limit"))
		switch start {
		case 0:
			io.WriteString(w, `{"Items":[{"Id":"e1","SeriesId":"s1","IndexNumber":1,"UserData":{"Played":true}},{"Id":"e2","SeriesId":"s1","IndexNumber":2}],"TotalRecordCount":3}`)
		case 2:
			io.WriteString(w, `{"Items":[{"Id":"e3","SeriesId":"s2","IndexNumber":1,"UserData":{"Played":true}}],"TotalRecordCount":3}`)
		default:
			t.Errorf("unexpected StartIndex %d", start)
		}
	})

	episodes, err := client.FetchEpisodes(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	require.Len(t, episodes, 3)
	assert.True(t, episodes[0].Played)
	assert.False(t, episodes[1].Played)
	assert.Equal(t, "s2", episodes[2].SeriesID)
}

func TestClient_ItemDetail(t *testing.T) {
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Users/u1/Items/s1", r.URL.Path)
		io.WriteString(w, `{"Id":"s1","Name":"Cowboy Bebop","Overview":"<p>In the year 2071</p>","ProviderIds":{"MyAnimeList":"1"}}`)
	})

	s, err := client.ItemDetail(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "<p>In the year 2071</p>", s.Overview)
	assert.Equal(t, "1", s.ProviderID("MyAnimeList"))
}

func TestClient_Errors(t *testing.T) {
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.FetchSeries(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, domainerrors.IsAuth(err))
}
