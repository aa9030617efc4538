package models

import (
	"fmt"
	"time"
)

// DataQuery is a declarative request for market data.
type DataQuery struct {
	Asset     AssetType  `json:"asset"`
	Market    MarketType `json:"market,omitempty"`
	Provider  string     `json:"provider,omitempty"` // pin to one provider
	Timeframe Timeframe  `json:"timeframe,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Symbols   []string   `json:"symbols"`   // raw, as supplied by the caller
	Canonical []string   `json:"canonical"` // resolved canonical symbols
	Adjust    AdjustMode `json:"adjust,omitempty"`
}

// Validate checks the structural invariants of a fetch query.
func (q DataQuery) Validate() error {
	if !assetTypes[q.Asset] {
		return fmt.Errorf("invalid asset type %q", q.Asset)
	}
	if q.Market != "" && !marketTypes[q.Market] {
		return fmt.Errorf("invalid market %q", q.Market)
	}
	if q.Timeframe != "" && !timeframes[q.Timeframe] {
		return fmt.Errorf("invalid timeframe %q", q.Timeframe)
	}
	if len(q.Symbols) == 0 {
		return fmt.Errorf("query requires at least one symbol")
	}
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return fmt.Errorf("query start %s after end %s",
			q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))
	}
	return nil
}

// HasTimeBounds reports whether the query asks for a historical window.
func (q DataQuery) HasTimeBounds() bool {
	return q.Start != nil || q.End != nil
}

// QuerySymbols returns the symbols a provider should fetch: canonical when
// resolution has run, raw otherwise.
func (q DataQuery) QuerySymbols() []string {
	if len(q.Canonical) > 0 {
		return q.Canonical
	}
	return q.Symbols
}

// DataResponse is the result of executing a DataQuery.
type DataResponse struct {
	Points    []DataPoint    `json:"points"`
	Source    ResponseSource `json:"source"`
	CacheHit  bool           `json:"cache_hit"`
	QueryTime time.Duration  `json:"query_time"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// ResponseSource attributes a response to the component that produced it.
type ResponseSource struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint,omitempty"`
}
