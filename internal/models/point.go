package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DataPoint is one observation for one instrument at one timestamp.
// Price fields are optional; nil means the provider did not supply them.
// Points are immutable once produced by an adapter.
type DataPoint struct {
	Symbol    string            `json:"symbol"`
	Market    MarketType        `json:"market"`
	Timestamp time.Time         `json:"timestamp"`
	Open      *decimal.Decimal  `json:"open,omitempty"`
	High      *decimal.Decimal  `json:"high,omitempty"`
	Low       *decimal.Decimal  `json:"low,omitempty"`
	Close     *decimal.Decimal  `json:"close,omitempty"`
	Volume    *decimal.Decimal  `json:"volume,omitempty"`
	Amount    *decimal.Decimal  `json:"amount,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Dec is a convenience constructor for optional decimal fields.
func Dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// Validate checks the OHLCV invariants:
// high >= low, high >= max(open, close), low <= min(open, close), volume >= 0.
func (p DataPoint) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("data point missing symbol")
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("data point %s missing timestamp", p.Symbol)
	}
	if p.High != nil && p.Low != nil && p.High.LessThan(*p.Low) {
		return fmt.Errorf("data point %s: high %s < low %s", p.Symbol, p.High, p.Low)
	}
	if p.Open != nil && p.Close != nil && p.High != nil && p.Low != nil {
		hi := decimal.Max(*p.Open, *p.Close)
		lo := decimal.Min(*p.Open, *p.Close)
		if p.High.LessThan(hi) {
			return fmt.Errorf("data point %s: high %s < max(open, close) %s", p.Symbol, p.High, hi)
		}
		if p.Low.GreaterThan(lo) {
			return fmt.Errorf("data point %s: low %s > min(open, close) %s", p.Symbol, p.Low, lo)
		}
	}
	if p.Volume != nil && p.Volume.IsNegative() {
		return fmt.Errorf("data point %s: negative volume %s", p.Symbol, p.Volume)
	}
	return nil
}

// ResolvedSymbol is the outcome of normalizing one raw symbol. The
// provider hint names the provider whose notation the matched rule
// recognized, when the rule declares one.
type ResolvedSymbol struct {
	Raw          string     `json:"raw_symbol"`
	Canonical    string     `json:"canonical"`
	Market       MarketType `json:"market"`
	Asset        AssetType  `json:"asset_type"`
	RuleID       string     `json:"rule_id"`
	ProviderHint string     `json:"provider_hint,omitempty"`
}
