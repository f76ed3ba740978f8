package domain

import (
	"fmt"
	"time"
)

// MappingSource records how a cross-reference entered the mapping store.
type MappingSource string

const (
	MappingSourceImported  MappingSource = "imported"  // bulk dataset import
	MappingSourceManual    MappingSource = "manual"    // created by a user
	MappingSourceConfirmed MappingSource = "confirmed" // imported row verified by a user
)

// Valid reports whether s is a known source.
func (s MappingSource) Valid() bool {
	switch s {
	case MappingSourceImported, MappingSourceManual, MappingSourceConfirmed:
		return true
	}
	return false
}

// UserVerified reports whether a person stands behind the mapping.
// Imports never overwrite the secondary id or the source of such rows.
func (s MappingSource) UserVerified() bool {
	return s == MappingSourceManual || s == MappingSourceConfirmed
}

// MappingMetadata is the descriptive payload carried by a mapping entry.
type MappingMetadata struct {
	Synonyms []string `json:"synonyms,omitempty"`
	Type     string   `json:"type,omitempty"`
	Episodes int      `json:"episodes,omitempty"`
	Status   string   `json:"status,omitempty"`
	Year     int      `json:"year,omitempty"`
}

// MappingEntry is one persisted primary <-> secondary id pair.
type MappingEntry struct {
	PrimaryID   int             `json:"primaryId"`
	SecondaryID int             `json:"secondaryId"`
	Title       string          `json:"title"`
	Source      MappingSource   `json:"source"`
	ConfirmedBy *string         `json:"confirmedBy,omitempty"`
	Confidence  *float64        `json:"confidence,omitempty"`
	Metadata    MappingMetadata `json:"metadata"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Titles returns the main title followed by all synonyms.
func (m *MappingEntry) Titles() []string {
	out := make([]string, 0, len(m.Metadata.Synonyms)+1)
	if m.Title != "" {
		out = append(out, m.Title)
	}
	return append(out, m.Metadata.Synonyms...)
}

// ImportState is the lifecycle of a dataset import.
type ImportState string

const (
	ImportStateInProgress ImportState = "in_progress"
	ImportStateSuccess    ImportState = "success"
	ImportStateFailed     ImportState = "failed"
)

// ImportStats counts what one dataset scan found.
type ImportStats struct {
	Processed       int `json:"processed"`
	WithPrimaryID   int `json:"withPrimaryId"`
	WithSecondaryID int `json:"withSecondaryId"`
	Complete        int `json:"complete"`
	Errors          int `json:"errors"`
	// BatchFailures counts mappings dropped because their batch failed to persist.
	BatchFailures int `json:"batchFailures"`
}

// Summary renders the stats as a one-line session summary.
func (s *ImportStats) Summary() string {
	return fmt.Sprintf("imported %d of %d entries (%d errors)", s.Complete, s.Processed, s.Errors)
}

// ImportStatus is the externally visible record of the last import of a dataset.
type ImportStatus struct {
	DatasetID    string      `json:"datasetId"`
	Status       ImportState `json:"status"`
	LastUpdated  time.Time   `json:"lastUpdated"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Statistics   ImportStats `json:"statistics"`
	TotalEntries int         `json:"totalEntries"`
}

// MatchAnomaly is raised when external mapping sources disagree on a secondary id.
// Chosen is the value picked by source priority.
type MatchAnomaly struct {
	ID           int64          `json:"id"`
	PrimaryID    int            `json:"primaryId"`
	Chosen       int            `json:"chosen"`
	ChosenSource string         `json:"chosenSource"`
	Candidates   map[string]int `json:"candidates"`
	DetectedAt   time.Time      `json:"detectedAt"`
}
