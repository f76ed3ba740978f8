// Package progress tracks observable state for long-running sync sessions.
package progress

import (
	"math"
	"time"
)

// Kind identifies what a session is doing.
type Kind string

const (
	KindList      Kind = "list"
	KindLibrary   Kind = "library"
	KindImport    Kind = "import"
	KindScheduled Kind = "scheduled"
)

// Status is the session lifecycle.
type Status string

const (
	StatusStarted   Status = "started"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome classifies one processed item.
type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomeUpdated Outcome = "updated"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// Session is the observable state of one run.
type Session struct {
	ID             string     `json:"id"`
	Type           Kind       `json:"type"`
	UserID         string     `json:"userId,omitempty"`
	TotalItems     int        `json:"totalItems"`
	ProcessedItems int        `json:"processedItems"`
	AddedEntries   int        `json:"addedEntries"`
	UpdatedEntries int        `json:"updatedEntries"`
	ErrorEntries   int        `json:"errorEntries"`
	SkippedEntries int        `json:"skippedEntries"`
	Percentage     int        `json:"percentage"`
	Status         Status     `json:"status"`
	Message        string     `json:"message,omitempty"`
	CurrentItem    string     `json:"currentItem,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	LastUpdate     time.Time  `json:"lastUpdate"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	DurationMs     int64      `json:"durationMs"`
}

// recompute derives the percentage from the counters and auto-completes a
// running session once every item has been processed.
func (s *Session) recompute(now time.Time) {
	if s.TotalItems > 0 {
		pct := int(math.Round(float64(s.ProcessedItems) * 100 / float64(s.TotalItems)))
		s.Percentage = min(pct, 100)
	}
	if s.Status == StatusRunning && s.TotalItems > 0 && s.ProcessedItems >= s.TotalItems {
		s.finish(StatusCompleted, now)
	}
	s.LastUpdate = now
	if s.EndTime != nil {
		s.DurationMs = s.EndTime.Sub(s.StartTime).Milliseconds()
	} else {
		s.DurationMs = now.Sub(s.StartTime).Milliseconds()
	}
}

func (s *Session) finish(status Status, now time.Time) {
	s.Status = status
	if s.EndTime == nil {
		end := now
		s.EndTime = &end
	}
	if status == StatusCompleted && s.TotalItems == 0 {
		s.Percentage = 100
	}
	s.CurrentItem = ""
}

// record counts one item.
func (s *Session) record(label string, outcome Outcome) {
	if !s.Status.Terminal() {
		s.Status = StatusRunning
		s.CurrentItem = label
	}
	s.ProcessedItems++
	switch outcome {
	case OutcomeAdded:
		s.AddedEntries++
	case OutcomeUpdated:
		s.UpdatedEntries++
	case OutcomeError:
		s.ErrorEntries++
	case OutcomeSkipped:
		s.SkippedEntries++
	}
}
