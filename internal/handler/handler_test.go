package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jofongang/World-Monitor/internal/cache"
	"github.com/jofongang/World-Monitor/internal/connector"
	"github.com/jofongang/World-Monitor/internal/fetch"
	"github.com/jofongang/World-Monitor/internal/ingest"
	"github.com/jofongang/World-Monitor/internal/market"
	"github.com/jofongang/World-Monitor/internal/metrics"
	"github.com/jofongang/World-Monitor/internal/model"
	"github.com/jofongang/World-Monitor/internal/store"
)

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *store.Store
	handler *Handler
	router  http.Handler
}

// staticConnector feeds a fixed event batch into ingestion runs.
type staticConnector struct {
	events []model.Event
}

func (c *staticConnector) Name() string  { return "static" }
func (c *staticConnector) Enabled() bool { return true }
func (c *staticConnector) Fetch(ctx context.Context, sinceHours int) connector.Result {
	return connector.Result{Name: "static", Events: c.events, DurationMs: 1}
}

func setup(t *testing.T, events ...model.Event) *fixture {
	t.Helper()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))
	st := store.NewWithClock(db, clockwork.NewFakeClockAt(testNow))

	logger := slog.New(slog.DiscardHandler)
	ingestSvc := ingest.New(st, []connector.Connector{&staticConnector{events: events}},
		logger, metrics.NewForTesting(), nil, ingest.Options{
			RefreshInterval:  10 * time.Minute,
			SinceHours:       48,
			SchedulerEnabled: false,
		})
	ingestSvc.SetClock(clockwork.NewFakeClockAt(testNow))

	stooq := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Date,Open,High,Low,Close,Volume\n2025-06-01,99.0,101.0,98.0,100.0,10\n2025-06-02,100.0,103.0,99.0,102.0,10\n")
	}))
	t.Cleanup(stooq.Close)
	marketSvc := market.NewService(
		fetch.New(fetch.Options{Timeout: 2 * time.Second}),
		cache.NewMemoryCache(time.Hour, 0),
		logger, market.DefaultOptions())
	marketSvc.SetBaseURLs(stooq.URL+"/q", stooq.URL+"/d")
	marketSvc.SetClock(clockwork.NewFakeClockAt(testNow))

	h := New(st, ingestSvc, marketSvc, logger)
	return &fixture{store: st, handler: h, router: h.Router(nil)}
}

func makeEvent(title, country, category string, severity int) model.Event {
	event := model.NewEvent()
	event.Title = title
	event.Summary = title
	event.Source = "test"
	event.Country = country
	event.Category = category
	event.Severity = severity
	event.OccurredAt = "2025-06-02T11:00:00Z"
	event.ClusterID = "cluster-" + title
	return event
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestListEventsReturnsStoredEvents(t *testing.T) {
	f := setup(t)
	_, err := f.store.UpsertEvents(context.Background(), []model.Event{
		makeEvent("Earthquake in Japan", "Japan", model.CategoryDisaster, 70),
		makeEvent("Sanctions announced", "Russia", model.CategorySanctions, 60),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/events?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decode(t, rec)
	items := payload["items"].([]any)
	assert.Len(t, items, 2)
	meta := payload["meta"].(map[string]any)
	assert.EqualValues(t, 2, meta["count"])
	assert.EqualValues(t, 168, meta["since_hours"])
	assert.Equal(t, false, meta["refreshed"])
	assert.Nil(t, meta["run_summary"])
}

func TestListEventsCategoryFilter(t *testing.T) {
	f := setup(t)
	_, err := f.store.UpsertEvents(context.Background(), []model.Event{
		makeEvent("Earthquake in Japan", "Japan", model.CategoryDisaster, 70),
		makeEvent("Sanctions announced", "Russia", model.CategorySanctions, 60),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/events?category=disaster", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	event := items[0].(map[string]any)
	assert.Equal(t, "Earthquake in Japan", event["title"])
}

func TestListEventsRefreshRunsIngestion(t *testing.T) {
	f := setup(t, makeEvent("Fresh from connector", "Japan", model.CategoryDisaster, 70))

	rec := f.do(t, http.MethodGet, "/api/events?refresh=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decode(t, rec)
	meta := payload["meta"].(map[string]any)
	assert.Equal(t, true, meta["refreshed"])
	summary := meta["run_summary"].(map[string]any)
	assert.Equal(t, "ok", summary["status"])
	assert.EqualValues(t, 1, summary["ingested"])
	assert.Len(t, payload["items"].([]any), 1)
}

func TestGetEventDetailWithRelated(t *testing.T) {
	f := setup(t)
	first := makeEvent("Earthquake strikes", "Japan", model.CategoryDisaster, 70)
	second := makeEvent("Earthquake follow-up", "Japan", model.CategoryDisaster, 65)
	second.ClusterID = first.ClusterID
	_, err := f.store.UpsertEvents(context.Background(), []model.Event{first, second})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/events/"+first.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decode(t, rec)
	event := payload["event"].(map[string]any)
	assert.Equal(t, first.ID, event["id"])
	related := payload["related"].([]any)
	require.Len(t, related, 1)
	assert.Equal(t, second.ID, related[0].(map[string]any)["id"])
}

func TestGetEventNotFound(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/api/events/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	payload := decode(t, rec)
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "not_found", errObj["code"])
}

func TestTimelineAndHotspotsAndPulse(t *testing.T) {
	f := setup(t)
	_, err := f.store.UpsertEvents(context.Background(), []model.Event{
		makeEvent("Earthquake in Japan", "Japan", model.CategoryDisaster, 70),
		makeEvent("Aftershock in Japan", "Japan", model.CategoryDisaster, 50),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/events/timeline?bucket_minutes=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["items"])

	rec = f.do(t, http.MethodGet, "/api/events/hotspots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hotspots := decode(t, rec)["items"].([]any)
	require.Len(t, hotspots, 1)
	assert.Equal(t, "Japan", hotspots[0].(map[string]any)["country"])

	rec = f.do(t, http.MethodGet, "/api/events/pulse", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.EqualValues(t, 6, payload["window_hours"])
	assert.EqualValues(t, 24, payload["baseline_hours"])
}

func TestAlertRuleLifecycleOverHTTP(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/alerts/rules", map[string]any{
		"name":               "<b>Quake watch</b>",
		"severity_threshold": 65,
		"categories":         []string{"disaster", "bogus"},
		"keywords":           []string{"earthquake"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode(t, rec)["item"].(map[string]any)
	assert.Equal(t, "Quake watch", item["name"])
	assert.Equal(t, []any{"disaster"}, item["categories"])
	ruleID := item["id"].(string)
	require.NotEmpty(t, ruleID)

	rec = f.do(t, http.MethodGet, "/api/alerts/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decode(t, rec)["items"].([]any)
	require.Len(t, rules, 1)

	// Update keeps the id.
	rec = f.do(t, http.MethodPost, "/api/alerts/rules", map[string]any{
		"id":                 ruleID,
		"name":               "Quake watch v2",
		"severity_threshold": 70,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/alerts/rules", nil)
	rules = decode(t, rec)["items"].([]any)
	require.Len(t, rules, 1)
	assert.Equal(t, "Quake watch v2", rules[0].(map[string]any)["name"])
}

func TestAlertInboxAckAndResolve(t *testing.T) {
	f := setup(t)

	rule := model.NewAlertRule("Inbox rule")
	require.NoError(t, f.store.UpsertAlertRule(context.Background(), rule))
	event := makeEvent("Severe storm", "Japan", model.CategoryDisaster, 80)
	_, err := f.store.UpsertEvents(context.Background(), []model.Event{event})
	require.NoError(t, err)
	created, err := f.store.AddAlertEvent(context.Background(), model.NewAlertEvent(rule.ID, event.ID))
	require.NoError(t, err)
	require.True(t, created)

	rec := f.do(t, http.MethodGet, "/api/alerts/inbox", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	alertEventID := items[0].(map[string]any)["alert_event_id"].(string)

	rec = f.do(t, http.MethodPost, "/api/alerts/inbox/"+alertEventID+"/ack", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// A second ack is rejected: acked is only reachable from new.
	rec = f.do(t, http.MethodPost, "/api/alerts/inbox/"+alertEventID+"/ack", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/alerts/inbox/"+alertEventID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/alerts/inbox?status=resolved", nil)
	items = decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "resolved", items[0].(map[string]any)["status"])
}

func TestAlertInboxRejectsBadStatus(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/api/alerts/inbox?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSavedQueryCRUD(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/queries", map[string]any{
		"name":    "High severity",
		"query":   "severity:>70",
		"filters": map[string]any{"category": "conflict"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	queryID := decode(t, rec)["item"].(map[string]any)["id"].(string)

	rec = f.do(t, http.MethodGet, "/api/queries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["items"].([]any), 1)

	rec = f.do(t, http.MethodDelete, "/api/queries/"+queryID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/queries/"+queryID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsRunAndStatus(t *testing.T) {
	f := setup(t, makeEvent("Connector event", "Japan", model.CategoryDisaster, 70))

	rec := f.do(t, http.MethodPost, "/api/jobs/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)
	assert.Equal(t, "ok", summary["status"])
	assert.EqualValues(t, 1, summary["ingested"])

	rec = f.do(t, http.MethodGet, "/api/jobs/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	job := payload["job"].(map[string]any)
	assert.Equal(t, false, job["running"])
	stats := payload["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["total_events"])

	rec = f.do(t, http.MethodGet, "/api/jobs/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["items"])

	rec = f.do(t, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sources := decode(t, rec)["items"].([]any)
	require.Len(t, sources, 1)
	assert.Equal(t, "static", sources[0].(map[string]any)["name"])
}

func TestHealthAndReadiness(t *testing.T) {
	f := setup(t, makeEvent("Connector event", "Japan", model.CategoryDisaster, 70))

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	// No successful run yet: degraded but still HTTP 200.
	rec = f.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])

	f.do(t, http.MethodPost, "/api/jobs/run", nil)

	rec = f.do(t, http.MethodGet, "/health/ready", nil)
	payload := decode(t, rec)
	assert.Equal(t, "ok", payload["status"])
	assert.EqualValues(t, 1, payload["sources_healthy"])

	rec = f.do(t, http.MethodGet, "/health/system", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	system := decode(t, rec)
	assert.NotNil(t, system["stats"])
	assert.NotNil(t, system["sources"])
}

func TestMarketsEndpoints(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/api/markets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.NotEmpty(t, items)
	first := items[0].(map[string]any)
	assert.Equal(t, "SPX", first["symbol"])
	assert.InDelta(t, 102.0, first["price"].(float64), 0.01)

	rec = f.do(t, http.MethodGet, "/api/markets/history?range=7d", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, "7d", payload["range"])
	series := payload["series"].([]any)
	require.NotEmpty(t, series)
	points := series[0].(map[string]any)["points"].([]any)
	assert.Len(t, points, 2)
}
