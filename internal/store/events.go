package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jofongang/World-Monitor/internal/model"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

const eventColumns = `id, external_id, source, source_url, title, summary, body_snippet,
	category, tags_json, country, region, lat, lon, severity, confidence,
	occurred_at, started_at, ingested_at, updated_at, cluster_id, raw_json`

// EventFilter narrows ListEvents. Zero values mean "no filter"; Limit
// and SinceHours fall back to the service defaults.
type EventFilter struct {
	Limit      int
	SinceHours int
	Category   string
	Region     string
	Country    string
	Search     string
}

// Hotspot is an aggregated country/region activity row.
type Hotspot struct {
	Country     string  `json:"country"`
	Region      string  `json:"region"`
	EventCount  int     `json:"event_count"`
	AvgSeverity float64 `json:"avg_severity"`
	LatestAt    string  `json:"latest_at"`
}

// TimelineBucket is one fixed-width time bucket of event activity.
type TimelineBucket struct {
	BucketTime  string  `json:"bucket_time"`
	EventCount  int     `json:"event_count"`
	AvgSeverity float64 `json:"avg_severity"`
}

// PulseEntry reports per-country activity change between a recent
// window and the preceding baseline window.
type PulseEntry struct {
	Country       string  `json:"country"`
	RecentCount   int     `json:"recent_count"`
	BaselineCount int     `json:"baseline_count"`
	DeltaRatio    float64 `json:"delta_ratio"`
}

// Stats is the coarse corpus summary used by the health endpoints.
type Stats struct {
	TotalEvents   int    `json:"total_events"`
	Events24h     int    `json:"events_24h"`
	OpenAlerts    int    `json:"open_alerts"`
	LatestEventAt string `json:"latest_event_at,omitempty"`
}

// UpsertEvents writes a batch of events in one transaction. Rows
// collide on dedupe identity; a collision refreshes the stored row in
// place while keeping its original id, and ingested_at never moves
// backwards. Each batch element's ID is rewritten to the stored row's
// id, so duplicates of an already-known event resolve to one identity.
// Returns the number of events processed.
func (s *Store) UpsertEvents(ctx context.Context, events []model.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (
			id, external_id, source, source_url, title, summary, body_snippet,
			category, tags_json, country, region, lat, lon, severity, confidence,
			occurred_at, started_at, ingested_at, updated_at, cluster_id, raw_json,
			dedupe_hash, title_hash, url_norm, bucket_hour
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedupe_hash) DO UPDATE SET
			source = excluded.source,
			source_url = excluded.source_url,
			title = excluded.title,
			summary = excluded.summary,
			body_snippet = excluded.body_snippet,
			category = excluded.category,
			tags_json = excluded.tags_json,
			country = excluded.country,
			region = excluded.region,
			lat = excluded.lat,
			lon = excluded.lon,
			severity = excluded.severity,
			confidence = excluded.confidence,
			occurred_at = excluded.occurred_at,
			started_at = excluded.started_at,
			ingested_at = MAX(events.ingested_at, excluded.ingested_at),
			updated_at = excluded.updated_at,
			cluster_id = excluded.cluster_id,
			raw_json = excluded.raw_json,
			title_hash = excluded.title_hash,
			url_norm = excluded.url_norm,
			bucket_hour = excluded.bucket_hour
		RETURNING id`)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range events {
		event := events[i]
		hashes := hashEvent(event)
		var storedID string
		if err := stmt.QueryRowContext(ctx,
			event.ID, event.ExternalID, event.Source, event.SourceURL,
			event.Title, event.Summary, event.BodySnippet,
			event.Category, marshalList(event.Tags), event.Country, event.Region,
			nullFloat(event.Lat), nullFloat(event.Lon),
			event.Severity, event.Confidence,
			event.OccurredAt, nullString(event.StartedAt), event.IngestedAt, event.UpdatedAt,
			event.ClusterID, marshalMap(event.Raw),
			hashes.dedupeHash, hashes.titleHash, hashes.urlNorm, hashes.bucketHour,
		).Scan(&storedID); err != nil {
			return 0, fmt.Errorf("upserting event %s: %w", event.ID, err)
		}
		events[i].ID = storedID
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert: %w", err)
	}
	return len(events), nil
}

// ListEvents returns events inside the window, newest first.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	if filter.Limit == 0 {
		filter.Limit = 120
	}
	if filter.SinceHours == 0 {
		filter.SinceHours = 24 * 7
	}

	clauses := []string{"occurred_at >= ?"}
	args := []any{s.cutoff(filter.SinceHours)}
	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Region != "" {
		clauses = append(clauses, "region = ?")
		args = append(args, filter.Region)
	}
	if filter.Country != "" {
		clauses = append(clauses, "country = ?")
		args = append(args, filter.Country)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		clauses = append(clauses, "(title LIKE ? OR summary LIKE ? OR tags_json LIKE ?)")
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, clampRange(filter.Limit, 1, 500))

	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY occurred_at DESC LIMIT ?`,
		eventColumns, strings.Join(clauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// GetEvent returns one event by id, or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM events WHERE id = ?", eventColumns), id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("getting event %s: %w", id, err)
	}
	return event, nil
}

// ListClusterEvents returns the newest events in a cluster.
func (s *Store) ListClusterEvents(ctx context.Context, clusterID string, limit int) ([]model.Event, error) {
	if limit == 0 {
		limit = 12
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM events WHERE cluster_id = ? ORDER BY occurred_at DESC LIMIT ?", eventColumns),
		clusterID, clampRange(limit, 1, 100))
	if err != nil {
		return nil, fmt.Errorf("listing cluster %s: %w", clusterID, err)
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// Hotspots aggregates recent activity per country/region, busiest
// first.
func (s *Store) Hotspots(ctx context.Context, sinceHours, limit int) ([]Hotspot, error) {
	if sinceHours == 0 {
		sinceHours = 24
	}
	if limit == 0 {
		limit = 12
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT country, region, COUNT(*) AS event_count,
			AVG(severity) AS avg_severity,
			MAX(occurred_at) AS latest_at
		FROM events
		WHERE occurred_at >= ?
		GROUP BY country, region
		ORDER BY event_count DESC, avg_severity DESC
		LIMIT ?`,
		s.cutoff(sinceHours), clampRange(limit, 1, 50))
	if err != nil {
		return nil, fmt.Errorf("listing hotspots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hotspots := []Hotspot{}
	for rows.Next() {
		var h Hotspot
		var avg sql.NullFloat64
		if err := rows.Scan(&h.Country, &h.Region, &h.EventCount, &avg, &h.LatestAt); err != nil {
			return nil, fmt.Errorf("scanning hotspot: %w", err)
		}
		h.AvgSeverity = round2(avg.Float64)
		hotspots = append(hotspots, h)
	}
	return hotspots, rows.Err()
}

// Timeline buckets the window into fixed intervals. bucketMinutes is
// clamped to [15, 360].
func (s *Store) Timeline(ctx context.Context, sinceHours, bucketMinutes int) ([]TimelineBucket, error) {
	if sinceHours == 0 {
		sinceHours = 24 * 7
	}
	if bucketMinutes == 0 {
		bucketMinutes = 60
	}
	bucketMinutes = clampRange(bucketMinutes, 15, 6*60)

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			strftime('%Y-%m-%dT%H:%M:00Z',
				datetime(
					CAST(strftime('%s', occurred_at) / (?1 * 60) AS INTEGER) * (?1 * 60),
					'unixepoch'
				)
			) AS bucket_time,
			COUNT(*) AS event_count,
			AVG(severity) AS avg_severity
		FROM events
		WHERE occurred_at >= ?2
		GROUP BY bucket_time
		ORDER BY bucket_time ASC`,
		bucketMinutes, s.cutoff(sinceHours))
	if err != nil {
		return nil, fmt.Errorf("building timeline: %w", err)
	}
	defer func() { _ = rows.Close() }()

	buckets := []TimelineBucket{}
	for rows.Next() {
		var b TimelineBucket
		var avg sql.NullFloat64
		if err := rows.Scan(&b.BucketTime, &b.EventCount, &avg); err != nil {
			return nil, fmt.Errorf("scanning timeline bucket: %w", err)
		}
		b.AvgSeverity = round2(avg.Float64)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// Pulse compares per-country counts in the recent window against the
// preceding baseline window and returns the strongest risers. Countries
// with no recent activity are dropped; a country absent from the
// baseline scores its raw recent count.
func (s *Store) Pulse(ctx context.Context, windowHours, baselineHours int) ([]PulseEntry, error) {
	if windowHours < 1 {
		windowHours = 6
	}
	if baselineHours < windowHours+1 {
		baselineHours = windowHours + 1
	}
	windowCutoff := s.cutoff(windowHours)
	baselineCutoff := s.cutoff(baselineHours)

	recent, err := s.countByCountry(ctx,
		"SELECT country, COUNT(*) FROM events WHERE occurred_at >= ? GROUP BY country",
		windowCutoff)
	if err != nil {
		return nil, fmt.Errorf("counting recent pulse window: %w", err)
	}
	baseline, err := s.countByCountry(ctx,
		"SELECT country, COUNT(*) FROM events WHERE occurred_at >= ? AND occurred_at < ? GROUP BY country",
		baselineCutoff, windowCutoff)
	if err != nil {
		return nil, fmt.Errorf("counting baseline pulse window: %w", err)
	}

	entries := []PulseEntry{}
	for country, recentCount := range recent {
		if recentCount <= 0 {
			continue
		}
		baselineCount := baseline[country]
		ratio := float64(recentCount)
		if baselineCount > 0 {
			ratio = float64(recentCount-baselineCount) / math.Max(1, float64(baselineCount))
		}
		entries = append(entries, PulseEntry{
			Country:       country,
			RecentCount:   recentCount,
			BaselineCount: baselineCount,
			DeltaRatio:    round3(ratio),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DeltaRatio != entries[j].DeltaRatio {
			return entries[i].DeltaRatio > entries[j].DeltaRatio
		}
		if entries[i].RecentCount != entries[j].RecentCount {
			return entries[i].RecentCount > entries[j].RecentCount
		}
		return entries[i].Country < entries[j].Country
	})
	if len(entries) > 12 {
		entries = entries[:12]
	}
	return entries, nil
}

// Stats returns the corpus summary.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&stats.TotalEvents); err != nil {
		return Stats{}, fmt.Errorf("counting events: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE occurred_at >= ?", s.cutoff(24)).Scan(&stats.Events24h); err != nil {
		return Stats{}, fmt.Errorf("counting 24h events: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alert_events WHERE status = ?", model.AlertStatusNew).Scan(&stats.OpenAlerts); err != nil {
		return Stats{}, fmt.Errorf("counting open alerts: %w", err)
	}
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(occurred_at) FROM events").Scan(&latest); err != nil {
		return Stats{}, fmt.Errorf("finding latest event: %w", err)
	}
	stats.LatestEventAt = latest.String
	return stats, nil
}

func (s *Store) countByCountry(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int{}
	for rows.Next() {
		var country string
		var count int
		if err := rows.Scan(&country, &count); err != nil {
			return nil, err
		}
		counts[country] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.Event, error) {
	var event model.Event
	var tags, raw string
	var lat, lon sql.NullFloat64
	var startedAt sql.NullString
	if err := row.Scan(
		&event.ID, &event.ExternalID, &event.Source, &event.SourceURL,
		&event.Title, &event.Summary, &event.BodySnippet,
		&event.Category, &tags, &event.Country, &event.Region,
		&lat, &lon, &event.Severity, &event.Confidence,
		&event.OccurredAt, &startedAt, &event.IngestedAt, &event.UpdatedAt,
		&event.ClusterID, &raw,
	); err != nil {
		return model.Event{}, err
	}
	event.Tags = unmarshalList(tags)
	event.Raw = unmarshalMap(raw)
	event.Lat = floatPtr(lat)
	event.Lon = floatPtr(lon)
	event.StartedAt = startedAt.String
	return event, nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	events := []model.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
