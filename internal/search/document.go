// Package search keeps a Bleve full-text index of local anime record titles.
// It backs fuzzy title matching for library series that carry no usable ids.
package search

import (
	"github.com/shirosync/shirosync-server/internal/domain"
	"github.com/shirosync/shirosync-server/internal/normalize"
)

// RecordDocument is the indexed form of an AnimeRecord.
type RecordDocument struct {
	ID          string
	Title       string
	AltTitles   []string
	MatchTitles []string // normalized title and alternates
	MediaType   string
	Genres      []string
	Year        int
	Episodes    int
	PrimaryID   int
	SecondaryID int
	Active      bool
	UpdatedAt   int64 // Unix millis
}

// NewRecordDocument builds the document for r.
func NewRecordDocument(r *domain.AnimeRecord) *RecordDocument {
	doc := &RecordDocument{
		ID:        r.ID,
		Title:     r.Title,
		AltTitles: r.AltTitles,
		MediaType: r.MediaType,
		Genres:    r.Genres,
		Year:      r.Year,
		Episodes:  r.Episodes,
		Active:    r.Sync.Active,
		UpdatedAt: r.UpdatedAt.UnixMilli(),
	}
	if r.PrimaryID != nil {
		doc.PrimaryID = *r.PrimaryID
	}
	if r.ExternalIDs.Secondary != nil {
		doc.SecondaryID = *r.ExternalIDs.Secondary
	}
	for _, t := range r.Titles() {
		if n := normalize.MatchTitle(t); n != "" {
			doc.MatchTitles = append(doc.MatchTitles, n)
		}
	}
	return doc
}

// ToMap converts the document to the lowercase field names used by the index mapping.
func (d *RecordDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":           d.ID,
		"title":        d.Title,
		"match_titles": d.MatchTitles,
		"active":       d.Active,
		"updated_at":   d.UpdatedAt,
	}
	if len(d.AltTitles) > 0 {
		m["alt_titles"] = d.AltTitles
	}
	if d.MediaType != "" {
		m["media_type"] = d.MediaType
	}
	if len(d.Genres) > 0 {
		m["genres"] = d.Genres
	}
	if d.Year > 0 {
		m["year"] = d.Year
	}
	if d.Episodes > 0 {
		m["episodes"] = d.Episodes
	}
	if d.PrimaryID > 0 {
		m["primary_id"] = d.PrimaryID
	}
	if d.SecondaryID > 0 {
		m["secondary_id"] = d.SecondaryID
	}
	return m
}
