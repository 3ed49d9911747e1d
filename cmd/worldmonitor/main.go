// Command worldmonitor runs the world-event aggregation backend: it
// ingests the configured connectors on a schedule, evaluates alert
// rules, and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jofongang/World-Monitor/internal/cache"
	"github.com/jofongang/World-Monitor/internal/config"
	"github.com/jofongang/World-Monitor/internal/connector"
	"github.com/jofongang/World-Monitor/internal/fetch"
	"github.com/jofongang/World-Monitor/internal/geo"
	"github.com/jofongang/World-Monitor/internal/handler"
	"github.com/jofongang/World-Monitor/internal/ingest"
	"github.com/jofongang/World-Monitor/internal/logging"
	"github.com/jofongang/World-Monitor/internal/market"
	"github.com/jofongang/World-Monitor/internal/metrics"
	"github.com/jofongang/World-Monitor/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	st := store.New(db)
	ctx := context.Background()
	if err := st.EnsureDefaultAlertRule(ctx); err != nil {
		return fmt.Errorf("seeding default alert rule: %w", err)
	}

	// Warnings and errors from ingestion are mirrored into the
	// operator-visible log table.
	logger = slog.New(logging.NewIngestLogHandler(logger.Handler(), st))
	slog.SetDefault(logger)

	appMetrics := metrics.New()

	appCache, err := cache.New(cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: time.Duration(cfg.MarketHistoryRefreshSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() { _ = appCache.Close() }()

	fetcher := fetch.New(fetch.Options{
		Timeout:     cfg.FetchTimeout(),
		Retries:     2,
		BaseBackoff: 600 * time.Millisecond,
		RateLimit:   4,
		RateBurst:   4,
	})

	resolver, err := geo.NewResolver(cfg.GazetteerPath)
	if err != nil {
		return fmt.Errorf("loading gazetteer: %w", err)
	}
	rss, err := connector.NewRSS(fetcher, resolver, cfg.FeedsPath)
	if err != nil {
		return fmt.Errorf("loading feed config: %w", err)
	}
	connectors := []connector.Connector{
		connector.NewUSGS(fetcher),
		connector.NewEONET(fetcher),
		connector.NewGDELT(fetcher, cfg.GdeltQuery, cfg.GdeltMaxRecords),
		rss,
	}
	if cfg.OptionalConnectors {
		connectors = append(connectors,
			connector.NewAcled(cfg.AcledAPIKey, cfg.AcledEmail),
			connector.NewMarketOverlay(cfg.AlphaVantageKey),
		)
	}

	notifier := ingest.NewNotifier(logger, ingest.DefaultNotifierConfig())
	ingestSvc := ingest.New(st, connectors, logger, appMetrics, notifier, ingest.Options{
		RefreshInterval:  cfg.RefreshInterval(),
		ConnectorDelay:   cfg.ConnectorDelayDuration(),
		SinceHours:       cfg.DefaultSinceHours,
		SchedulerEnabled: cfg.SchedulerEnabled,
	})

	marketSvc := market.NewService(fetcher, appCache, logger, market.Options{
		RefreshInterval: time.Duration(cfg.MarketRefreshSeconds) * time.Second,
		HistoryTTL:      time.Duration(cfg.MarketHistoryRefreshSeconds) * time.Second,
		HistoryDays:     14,
	})

	if err := ingestSvc.Start(ctx); err != nil {
		return fmt.Errorf("starting ingestion: %w", err)
	}
	defer ingestSvc.Stop()

	apiHandler := handler.New(st, ingestSvc, marketSvc, logger)
	router := apiHandler.Router(promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
