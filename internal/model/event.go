// Package model defines the domain records shared by connectors, the
// ingestion pipeline, the event store, and the HTTP layer.
package model

import "github.com/google/uuid"

// Event categories (closed enumeration).
const (
	CategoryConflict  = "conflict"
	CategoryDiplomacy = "diplomacy"
	CategorySanctions = "sanctions"
	CategoryCyber     = "cyber"
	CategoryDisaster  = "disaster"
	CategoryMarkets   = "markets"
	CategoryOther     = "other"
)

// Categories lists every valid event category.
var Categories = []string{
	CategoryConflict,
	CategoryDiplomacy,
	CategorySanctions,
	CategoryCyber,
	CategoryDisaster,
	CategoryMarkets,
	CategoryOther,
}

// ValidCategory reports whether c is part of the closed enumeration.
func ValidCategory(c string) bool {
	for _, candidate := range Categories {
		if candidate == c {
			return true
		}
	}
	return false
}

// GlobalLabel is the sentinel for unresolved country/region fields.
const GlobalLabel = "Global"

// Event is one normalized report from any connector. The id is
// process-assigned and stays stable across upserts of the same logical
// event; dedupe identity is computed at write time by the store and is
// not part of the domain record.
type Event struct {
	ID          string         `json:"id"`
	ExternalID  string         `json:"external_id"`
	Source      string         `json:"source"`
	SourceURL   string         `json:"source_url"`
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	BodySnippet string         `json:"body_snippet"`
	Category    string         `json:"category"`
	Tags        []string       `json:"tags"`
	Country     string         `json:"country"`
	Region      string         `json:"region"`
	Lat         *float64       `json:"lat"`
	Lon         *float64       `json:"lon"`
	Severity    int            `json:"severity"`
	Confidence  int            `json:"confidence"`
	OccurredAt  string         `json:"occurred_at"`
	StartedAt   string         `json:"started_at,omitempty"`
	IngestedAt  string         `json:"ingested_at"`
	UpdatedAt   string         `json:"updated_at"`
	ClusterID   string         `json:"cluster_id"`
	Raw         map[string]any `json:"raw"`
}

// NewEvent returns an Event with an assigned id, timestamps set to now
// and the unresolved-geo defaults in place.
func NewEvent() Event {
	now := UTCNow()
	return Event{
		ID:         uuid.NewString(),
		Category:   CategoryOther,
		Tags:       []string{},
		Country:    GlobalLabel,
		Region:     GlobalLabel,
		Severity:   30,
		Confidence: 70,
		OccurredAt: now,
		IngestedAt: now,
		UpdatedAt:  now,
		Raw:        map[string]any{},
	}
}

// ClampScore bounds a severity or confidence value to [0,100].
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
