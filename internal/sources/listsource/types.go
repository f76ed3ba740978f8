package listsource

import (
	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/sources"
)

type rawListPage struct {
	Data   []rawListItem `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type rawListItem struct {
	Node       rawAnime       `json:"node"`
	ListStatus *rawListStatus `json:"list_status"`
}

type rawAnime struct {
	ID                int    `json:"id"`
	Title             string `json:"title"`
	AlternativeTitles struct {
		Synonyms []string `json:"synonyms"`
		En       string   `json:"en"`
		Ja       string   `json:"ja"`
	} `json:"alternative_titles"`
	Genres      []rawNamed `json:"genres"`
	Studios     []rawNamed `json:"studios"`
	MediaType   string     `json:"media_type"`
	Status      string     `json:"status"`
	NumEpisodes int        `json:"num_episodes"`
	Synopsis    string     `json:"synopsis"`
	StartSeason struct {
		Year int `json:"year"`
	} `json:"start_season"`
}

type rawNamed struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// rawListStatus uses pointers so absent fields stay absent in the update.
type rawListStatus struct {
	Status             *string   `json:"status"`
	Score              *int      `json:"score"`
	NumEpisodesWatched *int      `json:"num_episodes_watched"`
	IsRewatching       *bool     `json:"is_rewatching"`
	NumTimesRewatched  *int      `json:"num_times_rewatched"`
	Tags               *[]string `json:"tags"`
	Comments           *string   `json:"comments"`
}

func (a *rawAnime) altTitles() []string {
	var out []string
	for _, t := range append([]string{a.AlternativeTitles.En, a.AlternativeTitles.Ja}, a.AlternativeTitles.Synonyms...) {
		if t != "" && t != a.Title {
			out = append(out, t)
		}
	}
	return out
}

func names(in []rawNamed) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, n := range in {
		out = append(out, n.Name)
	}
	return out
}

func (i *rawListItem) toEntry() sources.ListEntry {
	n := i.Node
	entry := sources.ListEntry{
		PrimaryID:    n.ID,
		Title:        n.Title,
		AltTitles:    n.altTitles(),
		Genres:       names(n.Genres),
		Studios:      names(n.Studios),
		MediaType:    n.MediaType,
		AiringStatus: n.Status,
		Episodes:     n.NumEpisodes,
		Year:         n.StartSeason.Year,
		Synopsis:     n.Synopsis,
	}

	ls := i.ListStatus
	if ls == nil {
		return entry
	}
	if ls.Status != nil {
		if st, ok := domain.ParseListStatus(*ls.Status); ok {
			entry.User.Status = &st
		}
	}
	entry.User.Score = ls.Score
	entry.User.EpisodesWatched = ls.NumEpisodesWatched
	entry.User.IsRewatching = ls.IsRewatching
	entry.User.RewatchCount = ls.NumTimesRewatched
	entry.User.Tags = ls.Tags
	entry.User.Comment = ls.Comments
	return entry
}
