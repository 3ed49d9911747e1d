package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jofongang/World-Monitor/internal/classify"
	"github.com/jofongang/World-Monitor/internal/fetch"
	"github.com/jofongang/World-Monitor/internal/model"
)

const usgsFallbackURL = "https://earthquake.usgs.gov/"

// USGS converts the public USGS earthquake GeoJSON summary feed into
// disaster events.
type USGS struct {
	fetcher *fetch.Fetcher
	baseURL string

	// MagnitudeBase and MagnitudeStep blend quake magnitude into the
	// severity score: max(keyword severity, base + magnitude*step).
	// Empirical constants carried over from production tuning.
	MagnitudeBase int
	MagnitudeStep int
}

// NewUSGS creates the USGS connector.
func NewUSGS(fetcher *fetch.Fetcher) *USGS {
	return &USGS{
		fetcher:       fetcher,
		baseURL:       "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary",
		MagnitudeBase: 45,
		MagnitudeStep: 10,
	}
}

// Name implements Connector.
func (c *USGS) Name() string { return "USGS Earthquakes" }

// Enabled implements Connector. The feed is public.
func (c *USGS) Enabled() bool { return true }

// SetBaseURL overrides the feed host, for tests.
func (c *USGS) SetBaseURL(base string) { c.baseURL = strings.TrimRight(base, "/") }

type usgsFeed struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

type usgsProperties struct {
	Title string   `json:"title"`
	Place string   `json:"place"`
	URL   string   `json:"url"`
	Mag   *float64 `json:"mag"`
	Time  *int64   `json:"time"` // epoch milliseconds
}

// Fetch implements Connector.
func (c *USGS) Fetch(ctx context.Context, sinceHours int) Result {
	started := time.Now()
	cutoff := cutoffTime(started, sinceHours)

	var feed usgsFeed
	if err := c.fetcher.GetJSON(ctx, c.feedURL(sinceHours), &feed); err != nil {
		return errorResult(c.Name(), started, err)
	}

	events := make([]model.Event, 0, len(feed.Features))
	for _, feature := range feed.Features {
		if event, ok := c.toEvent(feature); ok && withinWindow(event.OccurredAt, cutoff) {
			events = append(events, event)
		}
	}
	return okResult(c.Name(), started, events)
}

// feedURL picks the narrowest summary window covering sinceHours.
func (c *USGS) feedURL(sinceHours int) string {
	window := "all_month"
	switch {
	case sinceHours <= 24:
		window = "all_day"
	case sinceHours <= 24*7:
		window = "all_week"
	}
	return fmt.Sprintf("%s/%s.geojson", c.baseURL, window)
}

func (c *USGS) toEvent(feature usgsFeature) (model.Event, bool) {
	externalID := strings.TrimSpace(feature.ID)
	title := strings.TrimSpace(feature.Properties.Title)
	if externalID == "" || title == "" {
		return model.Event{}, false
	}

	place := strings.TrimSpace(feature.Properties.Place)
	sourceURL := strings.TrimSpace(feature.Properties.URL)
	if sourceURL == "" {
		sourceURL = usgsFallbackURL
	}

	occurredAt := model.UTCNow()
	if feature.Properties.Time != nil {
		occurredAt = model.FormatTime(time.UnixMilli(*feature.Properties.Time))
	}

	severity := classify.InferSeverity(model.CategoryDisaster, title+" "+place)
	magnitude := feature.Properties.Mag
	if magnitude != nil {
		blended := model.ClampScore(c.MagnitudeBase + int(*magnitude*float64(c.MagnitudeStep)))
		if blended > severity {
			severity = blended
		}
	}

	country, region := placeCountry(place)

	event := model.NewEvent()
	event.ExternalID = externalID
	event.Source = c.Name()
	event.SourceURL = sourceURL
	event.Title = title
	event.Summary = place
	if event.Summary == "" {
		event.Summary = "Earthquake update"
	}
	if magnitude != nil {
		event.BodySnippet = fmt.Sprintf("Magnitude %.1f", *magnitude)
		event.Tags = []string{"earthquake", fmt.Sprintf("mag:%.1f", *magnitude)}
	} else {
		event.Tags = []string{"earthquake", "mag:na"}
	}
	event.Category = model.CategoryDisaster
	event.Country = country
	event.Region = region
	if coords := feature.Geometry.Coordinates; len(coords) >= 2 {
		lon, lat := coords[0], coords[1]
		event.Lat = &lat
		event.Lon = &lon
	}
	event.Severity = severity
	event.Confidence = 88
	event.OccurredAt = occurredAt
	event.StartedAt = occurredAt
	event.ClusterID = classify.TextHash("usgs|" + classify.Normalize(place) + "|" + model.HourBucket(occurredAt))[:20]
	event.Raw = map[string]any{
		"id":    feature.ID,
		"title": title,
		"place": place,
		"url":   sourceURL,
	}
	if magnitude != nil {
		event.Raw["mag"] = *magnitude
	}
	return event, true
}

// placeCountry extracts a coarse country label from a USGS place
// string such as "44 km E of Sendai, Japan".
func placeCountry(place string) (country, region string) {
	text := strings.TrimSpace(place)
	if text == "" {
		return model.GlobalLabel, model.GlobalLabel
	}
	if idx := strings.LastIndex(text, ","); idx >= 0 {
		if candidate := strings.TrimSpace(text[idx+1:]); candidate != "" {
			return candidate, model.GlobalLabel
		}
	}
	return model.GlobalLabel, model.GlobalLabel
}
