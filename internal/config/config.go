// Package config loads application configuration from environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"WM_DB_PATH" envDefault:"./data/worldmonitor.db"`
	ServerHost string `env:"WM_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"WM_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"WM_ENV" envDefault:"development"`
	LogLevel   string `env:"WM_LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"WM_LOG_FORMAT" envDefault:"text"` // text or json

	// Ingestion tuning
	RefreshMinutes     int     `env:"WM_REFRESH_MINUTES" envDefault:"10"`        // scheduler interval
	ConnectorDelay     float64 `env:"WM_CONNECTOR_DELAY_SECONDS" envDefault:"0.35"` // pause between connectors
	DefaultSinceHours  int     `env:"WM_DEFAULT_SINCE_HOURS" envDefault:"48"`    // lookback window per run
	SchedulerEnabled   bool    `env:"WM_SCHEDULER_ENABLED" envDefault:"true"`
	OptionalConnectors bool    `env:"WM_OPTIONAL_CONNECTORS" envDefault:"false"` // key-gated connectors

	// Feed configuration
	FeedsPath     string `env:"WM_FEEDS_PATH"`     // RSS/Atom source list (YAML); embedded default when empty
	GazetteerPath string `env:"WM_GAZETTEER_PATH"` // country centroid table (YAML); embedded default when empty

	// GDELT connector
	GdeltQuery      string `env:"WM_GDELT_QUERY" envDefault:"(conflict OR sanctions OR earthquake OR cyclone OR cyber OR diplomacy)"`
	GdeltMaxRecords int    `env:"WM_GDELT_MAX_RECORDS" envDefault:"100"`

	// Optional key-gated connectors
	AcledAPIKey     string `env:"WM_ACLED_API_KEY"`
	AcledEmail      string `env:"WM_ACLED_EMAIL"`
	AlphaVantageKey string `env:"WM_ALPHA_VANTAGE_API_KEY"`

	// Market snapshot cache
	MarketRefreshSeconds        int `env:"WM_MARKET_REFRESH_SECONDS" envDefault:"60"`
	MarketHistoryRefreshSeconds int `env:"WM_MARKET_HISTORY_REFRESH_SECONDS" envDefault:"300"`

	// Optional Redis backing for snapshot caches
	RedisURL    string `env:"WM_REDIS_URL"`
	CachePrefix string `env:"WM_CACHE_PREFIX" envDefault:"wm:"`

	// Outbound HTTP
	FetchTimeoutSeconds float64 `env:"WM_FETCH_TIMEOUT_SECONDS" envDefault:"12"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// RefreshInterval returns the scheduler interval as a duration.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMinutes) * time.Minute
}

// ConnectorDelayDuration returns the inter-connector pause as a duration.
func (c Config) ConnectorDelayDuration() time.Duration {
	return time.Duration(c.ConnectorDelay * float64(time.Second))
}

// FetchTimeout returns the outbound request timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds * float64(time.Second))
}

// AcledEnabled returns true if ACLED credentials are configured.
func (c Config) AcledEnabled() bool {
	return c.AcledAPIKey != "" && c.AcledEmail != ""
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Clamp tunables to their operational floors; a zero interval would
	// spin the scheduler and a sub-6h lookback starves slow feeds.
	if cfg.RefreshMinutes < 1 {
		cfg.RefreshMinutes = 1
	}
	if cfg.DefaultSinceHours < 6 {
		cfg.DefaultSinceHours = 6
	}
	if cfg.ConnectorDelay < 0 {
		cfg.ConnectorDelay = 0
	}
	if cfg.FetchTimeoutSeconds < 1 {
		cfg.FetchTimeoutSeconds = 1
	}
	if cfg.GdeltMaxRecords < 20 {
		cfg.GdeltMaxRecords = 20
	}
	if cfg.GdeltMaxRecords > 250 {
		cfg.GdeltMaxRecords = 250
	}
	if cfg.MarketRefreshSeconds < 15 {
		cfg.MarketRefreshSeconds = 15
	}
	if cfg.MarketHistoryRefreshSeconds < 30 {
		cfg.MarketHistoryRefreshSeconds = 30
	}

	return cfg, nil
}
