// Package oracle abstracts the natural-language extraction collaborator.
// The core never interprets raw text itself; it hands messages to an
// Analyzer and receives structured event candidates back.
package oracle

import "context"

// Candidate is one event extracted from a message. EventTime is the
// oracle's raw timestamp string (RFC3339 when present); parsing and
// validation happen in the ingestion layer.
type Candidate struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	EventTime   *string  `json:"event_time,omitempty"`
	Location    *string  `json:"location,omitempty"`
	Keywords    []string `json:"keywords"`
	Confidence  float64  `json:"confidence"`
}

// Analyzer extracts event candidates from a message, given recent chat
// context. Implementations must not mutate any store state.
type Analyzer interface {
	Analyze(ctx context.Context, content string, recent []string) ([]Candidate, error)
}
