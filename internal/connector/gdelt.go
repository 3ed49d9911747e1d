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

// GDELT pulls recent articles from the GDELT DOC 2.0 ArtList API and
// classifies them with the shared keyword tables.
type GDELT struct {
	fetcher *fetch.Fetcher
	baseURL string

	Query      string
	MaxRecords int
	// Confidence assigned to every GDELT article. Empirical constant
	// carried over from production tuning.
	Confidence int
}

// NewGDELT creates the GDELT connector.
func NewGDELT(fetcher *fetch.Fetcher, query string, maxRecords int) *GDELT {
	if strings.TrimSpace(query) == "" {
		query = "(conflict OR sanctions OR earthquake OR cyclone OR cyber OR diplomacy)"
	}
	if maxRecords < 20 {
		maxRecords = 20
	}
	if maxRecords > 250 {
		maxRecords = 250
	}
	return &GDELT{
		fetcher:    fetcher,
		baseURL:    "https://api.gdeltproject.org/api/v2/doc/doc",
		Query:      query,
		MaxRecords: maxRecords,
		Confidence: 64,
	}
}

// Name implements Connector.
func (c *GDELT) Name() string { return "GDELT" }

// Enabled implements Connector. The service is public.
func (c *GDELT) Enabled() bool { return true }

// SetBaseURL overrides the API endpoint, for tests.
func (c *GDELT) SetBaseURL(base string) { c.baseURL = base }

type gdeltFeed struct {
	Articles []gdeltArticle `json:"articles"`
}

type gdeltArticle struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	URLMobile     string `json:"url_mobile"`
	SeenDate      string `json:"seendate"`
	SourceCountry string `json:"sourcecountry"`
	Domain        string `json:"domain"`
	Snippet       string `json:"snippet"`
}

// Fetch implements Connector.
func (c *GDELT) Fetch(ctx context.Context, sinceHours int) Result {
	started := time.Now()
	cutoff := cutoffTime(started, sinceHours)
	if sinceHours < 1 {
		sinceHours = 1
	}

	url := c.baseURL + "?" + fetch.EncodeQuery(map[string]string{
		"query":      c.Query,
		"mode":       "ArtList",
		"format":     "json",
		"sort":       "datedesc",
		"timespan":   strconv.Itoa(sinceHours) + "h",
		"maxrecords": strconv.Itoa(c.MaxRecords),
	})

	var feed gdeltFeed
	if err := c.fetcher.GetJSON(ctx, url, &feed); err != nil {
		return errorResult(c.Name(), started, err)
	}

	events := make([]model.Event, 0, len(feed.Articles))
	for _, article := range feed.Articles {
		if event, ok := c.toEvent(article); ok && withinWindow(event.OccurredAt, cutoff) {
			events = append(events, event)
		}
	}
	return okResult(c.Name(), started, events)
}

func (c *GDELT) toEvent(article gdeltArticle) (model.Event, bool) {
	title := strings.TrimSpace(article.Title)
	url := strings.TrimSpace(article.URL)
	if title == "" || url == "" {
		return model.Event{}, false
	}

	occurredAt := model.FormatTime(model.ParseTime(gdeltDate(article.SeenDate)))
	sourceCountry := strings.TrimSpace(article.SourceCountry)
	domain := strings.TrimSpace(article.Domain)
	if domain == "" {
		domain = c.Name()
	}
	summary := strings.TrimSpace(article.Snippet)

	body := title + " " + summary + " " + domain
	category := classify.InferCategory(body, model.CategoryOther)

	event := model.NewEvent()
	event.ExternalID = strings.TrimSpace(article.URLMobile)
	if event.ExternalID == "" {
		event.ExternalID = url
	}
	event.Source = c.Name() + ":" + domain
	event.SourceURL = url
	event.Title = title
	event.Summary = summary
	if event.Summary == "" {
		event.Summary = "GDELT article"
	}
	event.BodySnippet = truncate(summary, 240)
	event.Category = category
	event.Tags = []string{"gdelt", strings.ToLower(sourceCountry)}
	event.Country = sourceCountry
	if event.Country == "" {
		event.Country = model.GlobalLabel
	}
	event.Severity = classify.InferSeverity(category, body)
	event.Confidence = c.Confidence
	event.OccurredAt = occurredAt
	event.StartedAt = occurredAt
	event.ClusterID = classify.TextHash("gdelt|" + title + "|" + model.HourBucket(occurredAt))[:20]
	event.Raw = map[string]any{
		"url":           url,
		"title":         title,
		"domain":        domain,
		"sourcecountry": sourceCountry,
		"seendate":      article.SeenDate,
	}
	return event, true
}

// gdeltDate converts GDELT's compact "20240501T170000Z" form into a
// parseable timestamp; anything else passes through to ParseTime.
func gdeltDate(value string) string {
	text := strings.TrimSpace(value)
	if len(text) == 16 && text[8] == 'T' && strings.HasSuffix(text, "Z") {
		return text[0:4] + "-" + text[4:6] + "-" + text[6:8] + "T" +
			text[9:11] + ":" + text[11:13] + ":" + text[13:15] + "Z"
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
