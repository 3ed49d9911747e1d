package connector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jofongang/World-Monitor/internal/classify"
	"github.com/jofongang/World-Monitor/internal/fetch"
	"github.com/jofongang/World-Monitor/internal/model"
)

const eonetFallbackURL = "https://eonet.gsfc.nasa.gov/"

// EONET converts NASA's Earth Observatory natural event feed into
// disaster events.
type EONET struct {
	fetcher *fetch.Fetcher
	baseURL string
}

// NewEONET creates the EONET connector.
func NewEONET(fetcher *fetch.Fetcher) *EONET {
	return &EONET{
		fetcher: fetcher,
		baseURL: "https://eonet.gsfc.nasa.gov/api/v3/events",
	}
}

// Name implements Connector.
func (c *EONET) Name() string { return "NASA EONET" }

// Enabled implements Connector. The feed is public.
func (c *EONET) Enabled() bool { return true }

// SetBaseURL overrides the feed endpoint, for tests.
func (c *EONET) SetBaseURL(base string) { c.baseURL = base }

type eonetFeed struct {
	Events []eonetEvent `json:"events"`
}

type eonetEvent struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Sources    []struct {
		URL string `json:"url"`
	} `json:"sources"`
	Categories []struct {
		Title string `json:"title"`
	} `json:"categories"`
	Geometry []struct {
		Date        string    `json:"date"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// Fetch implements Connector.
func (c *EONET) Fetch(ctx context.Context, sinceHours int) Result {
	started := time.Now()
	cutoff := cutoffTime(started, sinceHours)

	days := sinceHours/24 + 2
	if days > 365 {
		days = 365
	}
	url := c.baseURL + "?" + fetch.EncodeQuery(map[string]string{
		"status": "all",
		"days":   strconv.Itoa(days),
	})

	var feed eonetFeed
	if err := c.fetcher.GetJSON(ctx, url, &feed); err != nil {
		return errorResult(c.Name(), started, err)
	}

	events := make([]model.Event, 0, len(feed.Events))
	for _, raw := range feed.Events {
		if event, ok := c.toEvent(raw); ok && withinWindow(event.OccurredAt, cutoff) {
			events = append(events, event)
		}
	}
	return okResult(c.Name(), started, events)
}

func (c *EONET) toEvent(raw eonetEvent) (model.Event, bool) {
	externalID := strings.TrimSpace(raw.ID)
	title := strings.TrimSpace(raw.Title)
	if externalID == "" || title == "" {
		return model.Event{}, false
	}

	sourceURL := eonetFallbackURL
	if len(raw.Sources) > 0 {
		if candidate := strings.TrimSpace(raw.Sources[0].URL); candidate != "" {
			sourceURL = candidate
		}
	}

	categoryTitles := make([]string, 0, len(raw.Categories))
	for _, category := range raw.Categories {
		if text := strings.TrimSpace(category.Title); text != "" {
			categoryTitles = append(categoryTitles, text)
		}
	}

	// The last geometry entry is the most recent observation.
	occurredAt := model.UTCNow()
	var lat, lon *float64
	if len(raw.Geometry) > 0 {
		latest := raw.Geometry[len(raw.Geometry)-1]
		if strings.TrimSpace(latest.Date) != "" {
			occurredAt = model.FormatTime(model.ParseTime(latest.Date))
		}
		if len(latest.Coordinates) >= 2 {
			lonVal, latVal := latest.Coordinates[0], latest.Coordinates[1]
			lat, lon = &latVal, &lonVal
		}
	}

	tags := append([]string{"nasa-eonet"}, lowerAll(categoryTitles)...)
	text := strings.Join(append([]string{title}, categoryTitles...), " ")

	event := model.NewEvent()
	event.ExternalID = externalID
	event.Source = c.Name()
	event.SourceURL = sourceURL
	event.Title = title
	event.Summary = strings.Join(categoryTitles, ", ")
	if event.Summary == "" {
		event.Summary = "Natural event update"
	}
	event.BodySnippet = strings.Join(categoryTitles, " / ")
	event.Category = model.CategoryDisaster
	event.Tags = tags
	event.Lat = lat
	event.Lon = lon
	event.Severity = classify.InferSeverity(model.CategoryDisaster, text)
	event.Confidence = 82
	event.OccurredAt = occurredAt
	event.StartedAt = occurredAt
	event.ClusterID = classify.TextHash("eonet|" + title + "|" + model.HourBucket(occurredAt))[:20]
	event.Raw = map[string]any{
		"id":         externalID,
		"title":      title,
		"categories": categoryTitles,
		"source_url": sourceURL,
	}
	return event, true
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.ToLower(item)
	}
	return out
}

