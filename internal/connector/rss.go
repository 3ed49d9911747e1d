package connector

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/jofongang/World-Monitor/internal/classify"
	"github.com/jofongang/World-Monitor/internal/fetch"
	"github.com/jofongang/World-Monitor/internal/geo"
	"github.com/jofongang/World-Monitor/internal/model"
)

//go:embed feeds.yaml
var defaultFeeds []byte

// RSSSource is one configured feed with fallback URLs.
type RSSSource struct {
	Name     string   `yaml:"name"`
	URLs     []string `yaml:"urls"`
	URL      string   `yaml:"url"`      // single-URL shorthand
	Category string   `yaml:"category"` // optional category hint
}

type feedsFile struct {
	Sources []RSSSource `yaml:"sources"`
}

// RSS fetches a configurable list of RSS/Atom sources and normalizes
// their entries. Feed markup is matched by local element name so RSS
// 2.0, RDF and Atom documents all parse without namespace handling.
type RSS struct {
	fetcher  *fetch.Fetcher
	resolver *geo.Resolver
	sources  []RSSSource
	policy   *bluemonday.Policy

	MaxItemsPerSource int
	RequestDelay      time.Duration
}

// NewRSS creates the RSS connector, loading sources from path or the
// embedded default list when path is empty.
func NewRSS(fetcher *fetch.Fetcher, resolver *geo.Resolver, path string) (*RSS, error) {
	raw := defaultFeeds
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading feeds config: %w", err)
		}
		raw = data
	}

	var file feedsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing feeds config: %w", err)
	}

	sources := make([]RSSSource, 0, len(file.Sources))
	for _, source := range file.Sources {
		source.Name = strings.TrimSpace(source.Name)
		if source.Name == "" {
			continue
		}
		urls := make([]string, 0, len(source.URLs)+1)
		for _, u := range source.URLs {
			if trimmed := strings.TrimSpace(u); trimmed != "" {
				urls = append(urls, trimmed)
			}
		}
		if single := strings.TrimSpace(source.URL); single != "" && len(urls) == 0 {
			urls = append(urls, single)
		}
		if len(urls) == 0 {
			continue
		}
		source.URLs = urls
		source.URL = ""
		source.Category = strings.ToLower(strings.TrimSpace(source.Category))
		sources = append(sources, source)
	}
	if len(sources) == 0 {
		return nil, errors.New("no valid RSS sources configured")
	}

	return &RSS{
		fetcher:           fetcher,
		resolver:          resolver,
		sources:           sources,
		policy:            bluemonday.StrictPolicy(),
		MaxItemsPerSource: 40,
		RequestDelay:      250 * time.Millisecond,
	}, nil
}

// Name implements Connector.
func (c *RSS) Name() string { return "RSS" }

// Enabled implements Connector.
func (c *RSS) Enabled() bool { return true }

// Sources exposes the loaded source list.
func (c *RSS) Sources() []RSSSource { return c.sources }

// Fetch implements Connector. Sources are fetched sequentially; a
// failing source contributes to the error summary without dropping the
// other sources' events.
func (c *RSS) Fetch(ctx context.Context, sinceHours int) Result {
	started := time.Now()
	cutoff := cutoffTime(started, sinceHours)

	var events []model.Event
	var errs []string
	for _, source := range c.sources {
		sourceEvents, err := c.fetchSource(ctx, source, cutoff)
		events = append(events, sourceEvents...)
		if err != nil {
			errs = append(errs, err.Error())
		}
		if c.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				errs = append(errs, ctx.Err().Error())
				return Result{
					Name:       c.Name(),
					Events:     events,
					Err:        strings.Join(errs, "; "),
					DurationMs: int(time.Since(started).Milliseconds()),
				}
			case <-time.After(c.RequestDelay):
			}
		}
	}

	result := okResult(c.Name(), started, events)
	result.Err = strings.Join(errs, "; ")
	return result
}

// fetchSource tries each configured URL until one yields entries.
func (c *RSS) fetchSource(ctx context.Context, source RSSSource, cutoff time.Time) ([]model.Event, error) {
	var errs []string
	for _, url := range source.URLs {
		data, err := c.fetcher.GetXML(ctx, url)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s:%s -> %v", source.Name, url, err))
			continue
		}
		items, err := parseFeed(data)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s:%s -> %v", source.Name, url, err))
			continue
		}
		if events := c.toEvents(source, items, cutoff); len(events) > 0 {
			return events, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, "; "))
	}
	return nil, nil
}

func (c *RSS) toEvents(source RSSSource, items []feedItem, cutoff time.Time) []model.Event {
	events := make([]model.Event, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.title)
		url := item.link()
		if title == "" || url == "" {
			continue
		}

		occurredAt := parseFeedDate(item.published)
		if !withinWindow(occurredAt, cutoff) {
			continue
		}

		summary := strings.TrimSpace(c.policy.Sanitize(item.summary))
		body := title + " " + summary + " " + source.Name

		category := source.Category
		if category == "" {
			category = classify.InferCategory(body, model.CategoryOther)
		}
		location := c.resolver.Resolve("", "", body)

		event := model.NewEvent()
		event.ExternalID = source.Name + ":" + url
		event.Source = source.Name
		event.SourceURL = url
		event.Title = title
		event.Summary = truncate(summary, 240)
		event.BodySnippet = truncate(summary, 320)
		event.Category = category
		event.Tags = []string{"rss", strings.ReplaceAll(strings.ToLower(source.Name), " ", "-")}
		event.Country = location.Country
		event.Region = location.Region
		event.Lat = location.Lat
		event.Lon = location.Lon
		event.Severity = classify.InferSeverity(category, body)
		event.Confidence = 74
		event.OccurredAt = occurredAt
		event.StartedAt = occurredAt
		seed := "rss|" + classify.Normalize(title) + "|" + location.Country + "|" + model.HourBucket(occurredAt)
		event.ClusterID = classify.TextHash(seed)[:20]
		event.Raw = map[string]any{
			"source":        source.Name,
			"url":           url,
			"summary":       item.summary,
			"published_raw": item.published,
		}
		events = append(events, event)
		if len(events) >= c.MaxItemsPerSource {
			break
		}
	}
	return events
}

// parseFeedDate handles the RFC1123-style dates common in RSS pubDate
// elements before falling back to ISO parsing.
func parseFeedDate(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return model.UTCNow()
	}
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
	} {
		if parsed, err := time.Parse(layout, text); err == nil {
			return model.FormatTime(parsed)
		}
	}
	return model.FormatTime(model.ParseTime(text))
}
