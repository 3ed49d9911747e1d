package connector

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Acled is a key-gated connector for the ACLED conflict dataset. It is
// registered unconditionally so its status row shows up in the sources
// view, but it only counts as enabled when both credentials are set.
type Acled struct {
	APIKey string
	Email  string
}

// NewAcled builds the connector from the configured credentials.
func NewAcled(apiKey, email string) *Acled {
	return &Acled{
		APIKey: strings.TrimSpace(apiKey),
		Email:  strings.TrimSpace(email),
	}
}

// Name implements Connector.
func (c *Acled) Name() string { return "ACLED" }

// Enabled implements Connector.
func (c *Acled) Enabled() bool {
	return c.APIKey != "" && c.Email != ""
}

// Fetch implements Connector.
func (c *Acled) Fetch(ctx context.Context, sinceHours int) Result {
	started := time.Now()
	if !c.Enabled() {
		return errorResult(c.Name(), started, errors.New("disabled (missing ACLED_API_KEY or ACLED_EMAIL)"))
	}
	// The keyed fetch path slots in here without touching the ingestion
	// orchestration; until it lands the connector reports itself idle.
	return errorResult(c.Name(), started, errors.New("enabled but not configured for this environment"))
}

// MarketOverlay is a key-gated connector reserved for a paid market
// data feed. Market snapshots themselves come from the market service;
// this connector exists so key-holders see a status row for it.
type MarketOverlay struct {
	AlphaVantageKey string
}

// NewMarketOverlay builds the connector from the configured key.
func NewMarketOverlay(alphaVantageKey string) *MarketOverlay {
	return &MarketOverlay{AlphaVantageKey: strings.TrimSpace(alphaVantageKey)}
}

// Name implements Connector.
func (c *MarketOverlay) Name() string { return "Market Overlay" }

// Enabled implements Connector.
func (c *MarketOverlay) Enabled() bool {
	return c.AlphaVantageKey != ""
}

// Fetch implements Connector.
func (c *MarketOverlay) Fetch(ctx context.Context, sinceHours int) Result {
	started := time.Now()
	if !c.Enabled() {
		return errorResult(c.Name(), started, errors.New("disabled (missing ALPHA_VANTAGE_API_KEY)"))
	}
	return errorResult(c.Name(), started, errors.New("enabled but no paid market connector configured"))
}
