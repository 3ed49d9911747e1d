// Package market serves cached market snapshots and history charts
// from the free Stooq CSV endpoints.
package market

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/jofongang/World-Monitor/internal/cache"
	"github.com/jofongang/World-Monitor/internal/fetch"
)

// DefaultHistoryRange is served when a requested range is unknown.
const DefaultHistoryRange = "1m"

// MaxHistoryPoints caps the points per history series; longer series
// are downsampled evenly.
const MaxHistoryPoints = 420

// historyRangeDays maps each range key to the fetch window. Windows
// run a bit long so weekends and market holidays still leave enough
// trading days.
var historyRangeDays = map[string]int{
	"24h": 2,
	"7d":  10,
	"1m":  35,
	"6m":  220,
	"1y":  400,
	"5y":  2000,
}

// Spec describes one tracked instrument. HistorySymbol overrides
// ProviderSymbol for the daily-history endpoint when the live symbol
// has no usable history.
type Spec struct {
	Symbol         string
	Name           string
	ProviderSymbol string
	HistorySymbol  string
}

// DefaultSpecs is the tracked instrument list.
var DefaultSpecs = []Spec{
	{Symbol: "SPX", Name: "S&P 500", ProviderSymbol: "^spx"},
	{Symbol: "DJI", Name: "Dow Jones", ProviderSymbol: "^dji"},
	{Symbol: "IXIC", Name: "NASDAQ", ProviderSymbol: "^ndq"},
	{Symbol: "FTSE", Name: "FTSE 100", ProviderSymbol: "^ukx"},
	{Symbol: "N225", Name: "Nikkei 225", ProviderSymbol: "^nkx"},
	{Symbol: "BTC", Name: "Bitcoin", ProviderSymbol: "btc.v"},
	// Stooq spot gold history is reliable; the futures quote feeds the live card.
	{Symbol: "GC", Name: "Gold", ProviderSymbol: "gc.f", HistorySymbol: "xauusd"},
	// Stooq crude futures lack a daily-history endpoint; USO proxies the trend line.
	{Symbol: "CL", Name: "Crude Oil", ProviderSymbol: "cl.f", HistorySymbol: "uso.us"},
}

// Quote is one market card entry.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
}

// HistoryPoint is one sampled close price.
type HistoryPoint struct {
	Timestamp string  `json:"timestamp"`
	Price     float64 `json:"price"`
}

// HistorySeries is one instrument's sampled history.
type HistorySeries struct {
	Symbol string         `json:"symbol"`
	Name   string         `json:"name"`
	Points []HistoryPoint `json:"points"`
}

// History is the chart payload for one range.
type History struct {
	Range  string          `json:"range"`
	Series []HistorySeries `json:"series"`
}

// Options tunes the Service.
type Options struct {
	RefreshInterval time.Duration // min gap between snapshot refresh attempts
	HistoryTTL      time.Duration // cache lifetime for history payloads
	HistoryDays     int           // daily-series window for snapshot change computation
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	return Options{
		RefreshInterval: time.Minute,
		HistoryTTL:      5 * time.Minute,
		HistoryDays:     14,
	}
}

// Service fetches and caches market data. Snapshots refresh lazily on
// read once stale; concurrent refreshes collapse into one upstream
// pass. A failed refresh keeps serving the last snapshot.
type Service struct {
	fetcher *fetch.Fetcher
	cache   cache.Cache
	logger  *slog.Logger
	clock   clockwork.Clock
	opts    Options
	specs   []Spec

	quoteBase string
	dailyBase string

	group singleflight.Group

	mu          sync.Mutex
	snapshot    []Quote
	lastAttempt time.Time
}

// NewService creates a market Service with the default instrument set.
func NewService(fetcher *fetch.Fetcher, c cache.Cache, logger *slog.Logger, opts Options) *Service {
	if opts.RefreshInterval < 15*time.Second {
		opts.RefreshInterval = 15 * time.Second
	}
	if opts.HistoryTTL < 30*time.Second {
		opts.HistoryTTL = 30 * time.Second
	}
	if opts.HistoryDays < 3 {
		opts.HistoryDays = 14
	}
	return &Service{
		fetcher:   fetcher,
		cache:     c,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
		opts:      opts,
		specs:     DefaultSpecs,
		quoteBase: "https://stooq.com/q/l/",
		dailyBase: "https://stooq.com/q/d/l/",
		snapshot:  fallbackSnapshot(),
	}
}

// SetBaseURLs overrides the Stooq endpoints, for tests.
func (s *Service) SetBaseURLs(quoteBase, dailyBase string) {
	s.quoteBase = quoteBase
	s.dailyBase = dailyBase
}

// SetClock overrides the clock, for tests.
func (s *Service) SetClock(clock clockwork.Clock) { s.clock = clock }

func fallbackSnapshot() []Quote {
	quotes := make([]Quote, len(DefaultSpecs))
	for i, spec := range DefaultSpecs {
		quotes[i] = Quote{Symbol: spec.Symbol, Name: spec.Name}
	}
	return quotes
}

// Snapshot returns the market cards, refreshing first if the cached
// snapshot is stale.
func (s *Service) Snapshot(ctx context.Context) []Quote {
	s.mu.Lock()
	stale := s.clock.Since(s.lastAttempt) >= s.opts.RefreshInterval
	s.mu.Unlock()
	if stale {
		s.Refresh(ctx, false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Quote, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Refresh fetches a new snapshot. Without force, attempts inside the
// refresh interval are skipped; concurrent callers share one fetch.
func (s *Service) Refresh(ctx context.Context, force bool) {
	s.mu.Lock()
	if !force && s.clock.Since(s.lastAttempt) < s.opts.RefreshInterval {
		s.mu.Unlock()
		return
	}
	s.lastAttempt = s.clock.Now()
	s.mu.Unlock()

	_, _, _ = s.group.Do("snapshot", func() (any, error) {
		quotes := s.fetchAll(ctx)
		if len(quotes) > 0 {
			s.mu.Lock()
			s.snapshot = quotes
			s.mu.Unlock()
		}
		return nil, nil
	})
}

// History returns the chart payload for a range, served from cache
// while fresh. Unknown ranges fall back to the default.
func (s *Service) History(ctx context.Context, rangeKey string) (History, error) {
	normalized := normalizeHistoryRange(rangeKey)
	cacheKey := "markets:history:" + normalized

	if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
		var payload History
		if err := json.Unmarshal(cached, &payload); err == nil {
			return payload, nil
		}
	}

	result, err, _ := s.group.Do("history:"+normalized, func() (any, error) {
		payload := s.fetchHistory(ctx, normalized)
		if data, err := json.Marshal(payload); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.opts.HistoryTTL)
		}
		return payload, nil
	})
	if err != nil {
		return History{}, err
	}
	return result.(History), nil
}

func (s *Service) fetchAll(ctx context.Context) []Quote {
	s.mu.Lock()
	previous := make(map[string]Quote, len(s.snapshot))
	for _, quote := range s.snapshot {
		previous[quote.Symbol] = quote
	}
	s.mu.Unlock()

	quotes := make([]Quote, 0, len(s.specs))
	for _, spec := range s.specs {
		price, changePct, err := s.fetchQuoteFor(ctx, spec.ProviderSymbol)
		if err != nil {
			s.logger.Warn("market fetch failed, serving cached quote",
				"symbol", spec.Symbol, "error", err)
			fallback, ok := previous[spec.Symbol]
			if !ok {
				fallback = Quote{Symbol: spec.Symbol}
			}
			fallback.Name = spec.Name
			quotes = append(quotes, fallback)
			continue
		}
		quotes = append(quotes, Quote{
			Symbol:    spec.Symbol,
			Name:      spec.Name,
			Price:     round2(price),
			ChangePct: round2(changePct),
		})
	}
	return quotes
}

// fetchQuoteFor prefers the daily series for its previous-close
// baseline and falls back to the live quote endpoint.
func (s *Service) fetchQuoteFor(ctx context.Context, providerSymbol string) (price, changePct float64, err error) {
	end := s.clock.Now()
	start := end.AddDate(0, 0, -s.opts.HistoryDays)
	rows, err := s.fetchDailyRows(ctx, providerSymbol, start, end)
	if err == nil && len(rows) > 0 {
		latest := rows[len(rows)-1]
		latestClose, ok := parseFloat(latest.close)
		if ok {
			var previousClose, openPrice *float64
			if len(rows) >= 2 {
				if v, ok := parseFloat(rows[len(rows)-2].close); ok {
					previousClose = &v
				}
			}
			if v, ok := parseFloat(latest.open); ok {
				openPrice = &v
			}
			return latestClose, changePercent(latestClose, previousClose, openPrice), nil
		}
	}
	return s.fetchFromQuote(ctx, providerSymbol)
}

func (s *Service) fetchFromQuote(ctx context.Context, providerSymbol string) (price, changePct float64, err error) {
	row, err := s.fetchQuoteRow(ctx, providerSymbol)
	if err != nil {
		return 0, 0, err
	}
	closePrice, ok := parseFloat(column(row, 6))
	if !ok {
		return 0, 0, fmt.Errorf("missing quote close for %s", providerSymbol)
	}
	var openPrice *float64
	if v, ok := parseFloat(column(row, 3)); ok {
		openPrice = &v
	}
	return closePrice, changePercent(closePrice, nil, openPrice), nil
}

func (s *Service) fetchHistory(ctx context.Context, rangeKey string) History {
	days := historyRangeDays[rangeKey]
	end := s.clock.Now()
	start := end.AddDate(0, 0, -days)

	series := make([]HistorySeries, 0, len(s.specs))
	for _, spec := range s.specs {
		series = append(series, HistorySeries{
			Symbol: spec.Symbol,
			Name:   spec.Name,
			Points: s.fetchHistoryPoints(ctx, spec, rangeKey, start, end),
		})
	}
	return History{Range: rangeKey, Series: series}
}

func (s *Service) fetchHistoryPoints(ctx context.Context, spec Spec, rangeKey string, start, end time.Time) []HistoryPoint {
	var rows []dailyRow
	for _, symbol := range []string{spec.HistorySymbol, spec.ProviderSymbol} {
		if symbol == "" {
			continue
		}
		fetched, err := s.fetchDailyRows(ctx, symbol, start, end)
		if err != nil {
			s.logger.Debug("market history fetch failed",
				"symbol", spec.Symbol, "provider", symbol, "error", err)
			continue
		}
		if len(fetched) > 0 {
			rows = fetched
			break
		}
	}

	// The 24h chart only needs the last two trading days.
	if rangeKey == "24h" && len(rows) > 2 {
		rows = rows[len(rows)-2:]
	}

	points := make([]HistoryPoint, 0, len(rows))
	for _, row := range rows {
		price, ok := parseFloat(row.close)
		if !ok || row.date == "" {
			continue
		}
		points = append(points, HistoryPoint{Timestamp: row.date, Price: round4(price)})
	}

	if len(points) == 0 {
		if point, ok := s.fetchQuotePoint(ctx, spec.ProviderSymbol); ok {
			points = []HistoryPoint{point}
		}
	}
	return downsample(points, MaxHistoryPoints)
}

func (s *Service) fetchQuotePoint(ctx context.Context, providerSymbol string) (HistoryPoint, bool) {
	row, err := s.fetchQuoteRow(ctx, providerSymbol)
	if err != nil {
		return HistoryPoint{}, false
	}
	price, ok := parseFloat(column(row, 6))
	if !ok {
		return HistoryPoint{}, false
	}

	quoteDate := strings.TrimSpace(column(row, 1))
	quoteTime := strings.TrimSpace(column(row, 2))
	timestamp := s.clock.Now().UTC().Format("2006-01-02")
	switch {
	case quoteDate != "" && quoteTime != "" && !strings.EqualFold(quoteTime, "N/D"):
		timestamp = quoteDate + "T" + quoteTime
	case quoteDate != "":
		timestamp = quoteDate
	}
	return HistoryPoint{Timestamp: timestamp, Price: round4(price)}, true
}

type dailyRow struct {
	date  string
	open  string
	close string
}

func (s *Service) fetchDailyRows(ctx context.Context, providerSymbol string, start, end time.Time) ([]dailyRow, error) {
	url := s.dailyBase + "?" + fetch.EncodeQuery(map[string]string{
		"s":  providerSymbol,
		"i":  "d",
		"d1": start.Format("20060102"),
		"d2": end.Format("20060102"),
	})
	data, err := s.fetcher.GetBytes(ctx, url, csvHeaders())
	if err != nil {
		return nil, err
	}
	return parseDailyRows(data)
}

func (s *Service) fetchQuoteRow(ctx context.Context, providerSymbol string) ([]string, error) {
	url := s.quoteBase + "?" + fetch.EncodeQuery(map[string]string{
		"s": providerSymbol,
		"f": "sd2t2ohlcv",
		"e": "csv",
	})
	data, err := s.fetcher.GetBytes(ctx, url, csvHeaders())
	if err != nil {
		return nil, err
	}
	row := parseQuoteRow(data)
	if row == nil {
		return nil, fmt.Errorf("no quote row for %s", providerSymbol)
	}
	return row, nil
}

func csvHeaders() map[string]string {
	return map[string]string{
		"Accept":          "text/csv, text/plain;q=0.9, */*;q=0.8",
		"Accept-Encoding": "identity",
	}
}

func parseDailyRows(data []byte) ([]dailyRow, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing daily csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	const bom = "\xef\xbb\xbf"

	header := records[0]
	dateIdx, openIdx, closeIdx := -1, -1, -1
	for i, name := range header {
		switch strings.TrimPrefix(strings.TrimSpace(name), bom) {
		case "Date":
			dateIdx = i
		case "Open":
			openIdx = i
		case "Close":
			closeIdx = i
		}
	}
	if dateIdx < 0 || closeIdx < 0 {
		return nil, nil
	}

	rows := make([]dailyRow, 0, len(records)-1)
	for _, record := range records[1:] {
		row := dailyRow{
			date:  strings.TrimSpace(column(record, dateIdx)),
			close: strings.TrimSpace(column(record, closeIdx)),
		}
		if openIdx >= 0 {
			row.open = strings.TrimSpace(column(record, openIdx))
		}
		if row.date == "" {
			continue
		}
		if _, ok := parseFloat(row.close); !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseQuoteRow(data []byte) []string {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		cleaned := make([]string, len(record))
		empty := true
		for i, field := range record {
			cleaned[i] = strings.TrimSpace(field)
			if cleaned[i] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, cleaned)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if strings.EqualFold(rows[0][0], "symbol") {
		if len(rows) >= 2 {
			return rows[1]
		}
		return nil
	}
	return rows[0]
}

func column(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}

func parseFloat(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, false
	}
	switch strings.ToUpper(cleaned) {
	case "N/D", "NULL", "-":
		return 0, false
	}
	parsed, err := strconv.ParseFloat(strings.ReplaceAll(cleaned, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// changePercent prefers the previous close as baseline and falls back
// to the session open.
func changePercent(current float64, previousClose, openPrice *float64) float64 {
	baseline := openPrice
	if previousClose != nil && *previousClose > 0 {
		baseline = previousClose
	}
	if baseline == nil || *baseline <= 0 {
		return 0
	}
	return (current - *baseline) / *baseline * 100
}

// downsample evenly samples points down to maxPoints, always keeping
// the first and last point.
func downsample(points []HistoryPoint, maxPoints int) []HistoryPoint {
	if len(points) <= maxPoints {
		return points
	}
	if maxPoints <= 2 {
		return []HistoryPoint{points[0], points[len(points)-1]}
	}
	step := float64(len(points)-1) / float64(maxPoints-1)
	sampled := make([]HistoryPoint, 0, maxPoints)
	for i := 0; i < maxPoints; i++ {
		sampled = append(sampled, points[int(math.Round(float64(i)*step))])
	}
	return sampled
}

func normalizeHistoryRange(rangeKey string) string {
	candidate := strings.ToLower(strings.TrimSpace(rangeKey))
	if _, ok := historyRangeDays[candidate]; !ok {
		return DefaultHistoryRange
	}
	return candidate
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
