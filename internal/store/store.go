package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jofongang/World-Monitor/internal/classify"
	"github.com/jofongang/World-Monitor/internal/model"
)

// Store wraps the SQLite database with the domain queries. Reads run
// concurrently under WAL; writes are serialized with a process-level
// mutex on top of SQLite's single-writer model.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock

	mu sync.Mutex // guards multi-statement writes
}

// New creates a Store on an open, migrated database.
func New(db *sql.DB) *Store {
	return NewWithClock(db, clockwork.NewRealClock())
}

// NewWithClock creates a Store with an injected clock, for tests.
func NewWithClock(db *sql.DB, clock clockwork.Clock) *Store {
	return &Store{db: db, clock: clock}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) now() string {
	return model.FormatTime(s.clock.Now())
}

// cutoff returns the canonical timestamp hours before now. All window
// queries compare canonical strings directly.
func (s *Store) cutoff(hours int) string {
	if hours < 1 {
		hours = 1
	}
	return model.FormatTime(s.clock.Now().Add(-time.Duration(hours) * time.Hour))
}

// eventHashes derives the dedupe identity columns for an event. Events
// with a source URL dedupe on the normalized URL alone; URL-less events
// dedupe on normalized title, country, and UTC hour bucket.
type eventHashes struct {
	dedupeHash string
	titleHash  string
	urlNorm    string
	bucketHour string
}

func hashEvent(event model.Event) eventHashes {
	titleNorm := classify.Normalize(event.Title)
	urlNorm := strings.ToLower(strings.TrimSpace(event.SourceURL))
	bucket := model.HourBucket(event.OccurredAt)

	base := "url:" + urlNorm
	if urlNorm == "" {
		base = "title:" + titleNorm + "|country:" + classify.Normalize(event.Country) + "|bucket:" + bucket
	}
	sum := sha256.Sum256([]byte(base))

	return eventHashes{
		dedupeHash: hex.EncodeToString(sum[:]),
		titleHash:  classify.TextHash(event.Title),
		urlNorm:    urlNorm,
		bucketHour: bucket,
	}
}

func marshalList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func marshalMap(values map[string]any) string {
	if values == nil {
		values = map[string]any{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unmarshalList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func unmarshalMap(raw string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func clampRange(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
