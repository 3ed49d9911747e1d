package connector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jofongang/World-Monitor/internal/fetch"
	"github.com/jofongang/World-Monitor/internal/geo"
	"github.com/jofongang/World-Monitor/internal/model"
)

func testFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Options{
		Timeout:     2 * time.Second,
		Retries:     0,
		BaseBackoff: time.Millisecond,
		RateLimit:   0,
	})
}

func TestUSGSFetch(t *testing.T) {
	recent := time.Now().UTC().Add(-2 * time.Hour).UnixMilli()
	stale := time.Now().UTC().Add(-90 * time.Hour).UnixMilli()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/all_week.geojson", r.URL.Path)
		fmt.Fprintf(w, `{"features":[
			{"id":"us1","properties":{"title":"M 6.1 - 44 km E of Sendai, Japan","place":"44 km E of Sendai, Japan","url":"https://example.gov/us1","mag":6.1,"time":%d},
			 "geometry":{"coordinates":[141.2,38.4,30.0]}},
			{"id":"us2","properties":{"title":"M 4.0 - somewhere","place":"somewhere","url":"","mag":4.0,"time":%d},
			 "geometry":{"coordinates":[0,0,0]}},
			{"id":"","properties":{"title":"missing id"}}
		]}`, recent, stale)
	}))
	defer server.Close()

	c := NewUSGS(testFetcher())
	c.SetBaseURL(server.URL)

	result := c.Fetch(context.Background(), 48)
	require.True(t, result.OK(), result.Err)
	require.Len(t, result.Events, 1)

	event := result.Events[0]
	assert.Equal(t, "us1", event.ExternalID)
	assert.Equal(t, "USGS Earthquakes", event.Source)
	assert.Equal(t, model.CategoryDisaster, event.Category)
	assert.Equal(t, "Japan", event.Country)
	// Magnitude blend: 45 + 6.1*10 = 106, clamped to 100.
	assert.Equal(t, 100, event.Severity)
	assert.Equal(t, 88, event.Confidence)
	require.NotNil(t, event.Lat)
	assert.InDelta(t, 38.4, *event.Lat, 0.001)
	require.NotNil(t, event.Lon)
	assert.InDelta(t, 141.2, *event.Lon, 0.001)
	assert.Contains(t, event.Tags, "earthquake")
	assert.Contains(t, event.Tags, "mag:6.1")
	assert.Len(t, event.ClusterID, 20)
}

func TestUSGSFeedWindow(t *testing.T) {
	c := NewUSGS(testFetcher())
	c.SetBaseURL("https://quakes.test")
	assert.Equal(t, "https://quakes.test/all_day.geojson", c.feedURL(12))
	assert.Equal(t, "https://quakes.test/all_day.geojson", c.feedURL(24))
	assert.Equal(t, "https://quakes.test/all_week.geojson", c.feedURL(48))
	assert.Equal(t, "https://quakes.test/all_month.geojson", c.feedURL(24*14))
}

func TestUSGSFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewUSGS(testFetcher())
	c.SetBaseURL(server.URL)

	result := c.Fetch(context.Background(), 24)
	assert.False(t, result.OK())
	assert.Empty(t, result.Events)
	assert.NotEmpty(t, result.Err)
}

func TestPlaceCountry(t *testing.T) {
	country, region := placeCountry("44 km E of Sendai, Japan")
	assert.Equal(t, "Japan", country)
	assert.Equal(t, model.GlobalLabel, region)

	country, _ = placeCountry("southern mid-Atlantic ridge")
	assert.Equal(t, model.GlobalLabel, country)

	country, _ = placeCountry("")
	assert.Equal(t, model.GlobalLabel, country)
}

func TestEONETFetch(t *testing.T) {
	recent := model.FormatTime(time.Now().UTC().Add(-3 * time.Hour))
	earlier := model.FormatTime(time.Now().UTC().Add(-5 * time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("status"))
		assert.Equal(t, "4", r.URL.Query().Get("days"))
		fmt.Fprintf(w, `{"events":[
			{"id":"EONET_1","title":"Wildfire near Athens","sources":[{"url":"https://example.org/fire"}],
			 "categories":[{"title":"Wildfires"}],
			 "geometry":[{"date":%q,"coordinates":[23.7,37.9]},{"date":%q,"coordinates":[23.8,38.0]}]},
			{"id":"","title":"no id"}
		]}`, earlier, recent)
	}))
	defer server.Close()

	c := NewEONET(testFetcher())
	c.SetBaseURL(server.URL)

	result := c.Fetch(context.Background(), 48)
	require.True(t, result.OK(), result.Err)
	require.Len(t, result.Events, 1)

	event := result.Events[0]
	assert.Equal(t, "EONET_1", event.ExternalID)
	assert.Equal(t, "NASA EONET", event.Source)
	assert.Equal(t, "https://example.org/fire", event.SourceURL)
	assert.Equal(t, model.CategoryDisaster, event.Category)
	assert.Equal(t, 82, event.Confidence)
	// The last geometry entry wins.
	assert.Equal(t, recent, event.OccurredAt)
	require.NotNil(t, event.Lat)
	assert.InDelta(t, 38.0, *event.Lat, 0.001)
	assert.Contains(t, event.Tags, "wildfires")
}

func TestGDELTFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ArtList", r.URL.Query().Get("mode"))
		assert.Equal(t, "24h", r.URL.Query().Get("timespan"))
		assert.Equal(t, "50", r.URL.Query().Get("maxrecords"))
		seen := time.Now().UTC().Add(-1 * time.Hour).Format("20060102T150405Z")
		fmt.Fprintf(w, `{"articles":[
			{"title":"Missile strike hits border town","url":"https://news.example/a1",
			 "url_mobile":"https://m.news.example/a1","seendate":%q,
			 "sourcecountry":"Ukraine","domain":"news.example","snippet":"Shelling continued overnight."},
			{"title":"","url":"https://news.example/empty"}
		]}`, seen)
	}))
	defer server.Close()

	c := NewGDELT(testFetcher(), "", 50)
	c.SetBaseURL(server.URL)

	result := c.Fetch(context.Background(), 24)
	require.True(t, result.OK(), result.Err)
	require.Len(t, result.Events, 1)

	event := result.Events[0]
	assert.Equal(t, "https://m.news.example/a1", event.ExternalID)
	assert.Equal(t, "GDELT:news.example", event.Source)
	assert.Equal(t, "https://news.example/a1", event.SourceURL)
	assert.Equal(t, model.CategoryConflict, event.Category)
	assert.Equal(t, "Ukraine", event.Country)
	assert.Equal(t, 64, event.Confidence)
}

func TestGDELTClampsMaxRecords(t *testing.T) {
	assert.Equal(t, 20, NewGDELT(testFetcher(), "", 5).MaxRecords)
	assert.Equal(t, 250, NewGDELT(testFetcher(), "", 9000).MaxRecords)
	assert.NotEmpty(t, NewGDELT(testFetcher(), "", 50).Query)
}

func TestGdeltDate(t *testing.T) {
	assert.Equal(t, "2024-05-01T17:00:00Z", gdeltDate("20240501T170000Z"))
	assert.Equal(t, "2024-05-01T17:00:00Z", gdeltDate("2024-05-01T17:00:00Z"))
	assert.Equal(t, "", gdeltDate(""))
}

func writeFeedsConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRSSFetch(t *testing.T) {
	published := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC1123)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<rss version="2.0"><channel><title>Wire</title>
			<item>
				<title>Missile strike reported near Kyiv</title>
				<link>https://wire.example/kyiv</link>
				<description><![CDATA[<b>Explosions</b> heard across the city.]]></description>
				<pubDate>%s</pubDate>
			</item>
		</channel></rss>`, published)
	}))
	defer server.Close()

	resolver, err := geo.NewResolver("")
	require.NoError(t, err)

	path := writeFeedsConfig(t, fmt.Sprintf("sources:\n  - name: Wire Test\n    urls:\n      - %s\n", server.URL))
	c, err := NewRSS(testFetcher(), resolver, path)
	require.NoError(t, err)
	c.RequestDelay = 0

	result := c.Fetch(context.Background(), 48)
	require.True(t, result.OK(), result.Err)
	require.Len(t, result.Events, 1)

	event := result.Events[0]
	assert.Equal(t, "Wire Test", event.Source)
	assert.Equal(t, "Wire Test:https://wire.example/kyiv", event.ExternalID)
	assert.Equal(t, model.CategoryConflict, event.Category)
	assert.Equal(t, "Ukraine", event.Country)
	assert.Equal(t, 74, event.Confidence)
	// Markup is stripped from the stored summary.
	assert.NotContains(t, event.Summary, "<b>")
	assert.Contains(t, event.Summary, "Explosions")
}

func TestRSSSourceURLFallback(t *testing.T) {
	published := time.Now().UTC().Format(time.RFC1123)
	var primaryCalls, backupCalls int
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		primaryCalls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primary.Close()
	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		backupCalls++
		fmt.Fprintf(w, `<rss><channel><item>
			<title>Storm warning issued</title>
			<link>https://backup.example/storm</link>
			<pubDate>%s</pubDate>
		</item></channel></rss>`, published)
	}))
	defer backup.Close()

	resolver, err := geo.NewResolver("")
	require.NoError(t, err)

	path := writeFeedsConfig(t, fmt.Sprintf(
		"sources:\n  - name: Fallback Test\n    category: disaster\n    urls:\n      - %s\n      - %s\n",
		primary.URL, backup.URL))
	c, err := NewRSS(testFetcher(), resolver, path)
	require.NoError(t, err)
	c.RequestDelay = 0

	result := c.Fetch(context.Background(), 48)
	assert.Equal(t, 1, primaryCalls)
	assert.Equal(t, 1, backupCalls)
	require.Len(t, result.Events, 1)
	// The configured category hint overrides keyword inference.
	assert.Equal(t, model.CategoryDisaster, result.Events[0].Category)
}

func TestRSSKeepsOtherSourcesOnFailure(t *testing.T) {
	published := time.Now().UTC().Format(time.RFC1123)
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<rss><channel><item>
			<title>Summit concludes with joint statement</title>
			<link>https://good.example/summit</link>
			<pubDate>%s</pubDate>
		</item></channel></rss>`, published)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	resolver, err := geo.NewResolver("")
	require.NoError(t, err)

	path := writeFeedsConfig(t, fmt.Sprintf(
		"sources:\n  - name: Bad\n    url: %s\n  - name: Good\n    url: %s\n", bad.URL, good.URL))
	c, err := NewRSS(testFetcher(), resolver, path)
	require.NoError(t, err)
	c.RequestDelay = 0

	result := c.Fetch(context.Background(), 48)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "Good", result.Events[0].Source)
	assert.NotEmpty(t, result.Err)
}

func TestNewRSSRejectsEmptyConfig(t *testing.T) {
	resolver, err := geo.NewResolver("")
	require.NoError(t, err)

	path := writeFeedsConfig(t, "sources:\n  - name: \"\"\n    url: https://x.example\n")
	_, err = NewRSS(testFetcher(), resolver, path)
	assert.Error(t, err)
}

func TestNewRSSEmbeddedDefaults(t *testing.T) {
	resolver, err := geo.NewResolver("")
	require.NoError(t, err)

	c, err := NewRSS(testFetcher(), resolver, "")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Sources())
	for _, source := range c.Sources() {
		assert.NotEmpty(t, source.Name)
		assert.NotEmpty(t, source.URLs)
	}
}

func TestOptionalConnectorsDisabled(t *testing.T) {
	acled := NewAcled("", "")
	assert.False(t, acled.Enabled())
	result := acled.Fetch(context.Background(), 48)
	assert.False(t, result.OK())
	assert.Contains(t, result.Err, "disabled")
	assert.Empty(t, result.Events)

	overlay := NewMarketOverlay(" ")
	assert.False(t, overlay.Enabled())
	result = overlay.Fetch(context.Background(), 48)
	assert.Contains(t, result.Err, "ALPHA_VANTAGE_API_KEY")
}

func TestOptionalConnectorsEnabled(t *testing.T) {
	acled := NewAcled("key", "ops@example.com")
	assert.True(t, acled.Enabled())
	result := acled.Fetch(context.Background(), 48)
	assert.Contains(t, result.Err, "not configured")

	overlay := NewMarketOverlay("key")
	assert.True(t, overlay.Enabled())
}

func TestCutoffWindowBoundary(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	cutoff := cutoffTime(now, 48)

	assert.True(t, withinWindow("2025-05-31T12:00:00Z", cutoff))
	assert.True(t, withinWindow("2025-06-01T00:00:00Z", cutoff))
	assert.False(t, withinWindow("2025-05-31T11:59:59Z", cutoff))
}
