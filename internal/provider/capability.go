// Package provider defines the contract every upstream data source
// implements, plus the shared capability, auth, and rate-limit plumbing the
// concrete adapters build on.
package provider

import (
	"context"
	"time"

	"github.com/vprism/vprism/internal/models"
)

// Provider is the black-box contract for one upstream market-data source.
type Provider interface {
	// Name is the stable registry identifier.
	Name() string
	// Capability describes what this provider can serve; computed once.
	Capability() Capability
	// GetData executes a query. Failures are *errs.Error provider variants.
	GetData(ctx context.Context, q models.DataQuery) (*models.DataResponse, error)
	// StreamData yields a lazy sequence of points. Providers without
	// streaming support return an error for every call.
	StreamData(ctx context.Context, q models.DataQuery) (<-chan models.DataPoint, error)
	// HealthCheck probes the upstream; false marks the provider unhealthy.
	HealthCheck(ctx context.Context) bool
}

// Capability describes the query shapes a provider supports.
type Capability struct {
	Assets               []models.AssetType  `yaml:"assets" json:"assets"`
	Markets              []models.MarketType `yaml:"markets" json:"markets"`
	Timeframes           []models.Timeframe  `yaml:"timeframes" json:"timeframes"`
	MaxSymbolsPerRequest int                 `yaml:"max_symbols_per_request" json:"max_symbols_per_request"`
	SupportsRealTime     bool                `yaml:"supports_real_time" json:"supports_real_time"`
	SupportsHistorical   bool                `yaml:"supports_historical" json:"supports_historical"`
	DataDelaySeconds     int                 `yaml:"data_delay_seconds" json:"data_delay_seconds"`
	MaxHistoryDays       int                 `yaml:"max_history_days" json:"max_history_days"`
}

// CanHandle reports whether a query fits this capability. Market and
// timeframe are only required when the query sets them; historical bounds
// require historical support within MaxHistoryDays of now.
func (c Capability) CanHandle(q models.DataQuery, now time.Time) bool {
	if !containsAsset(c.Assets, q.Asset) {
		return false
	}
	if q.Market != "" && !containsMarket(c.Markets, q.Market) {
		return false
	}
	if q.Timeframe != "" && !containsTimeframe(c.Timeframes, q.Timeframe) {
		return false
	}
	if c.MaxSymbolsPerRequest > 0 && len(q.QuerySymbols()) > c.MaxSymbolsPerRequest {
		return false
	}
	if q.HasTimeBounds() {
		if !c.SupportsHistorical {
			return false
		}
		if c.MaxHistoryDays > 0 && q.Start != nil {
			oldest := now.AddDate(0, 0, -c.MaxHistoryDays)
			if q.Start.Before(oldest) {
				return false
			}
		}
	}
	return true
}

func containsAsset(xs []models.AssetType, x models.AssetType) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsMarket(xs []models.MarketType, x models.MarketType) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsTimeframe(xs []models.Timeframe, x models.Timeframe) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
