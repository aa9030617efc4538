package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DividendEvent is a cash dividend keyed by (symbol, market, ex_date).
type DividendEvent struct {
	Symbol     string            `json:"symbol"`
	Market     MarketType        `json:"market"`
	ExDate     time.Time         `json:"ex_date"`
	PayDate    *time.Time        `json:"pay_date,omitempty"`
	CashAmount decimal.Decimal   `json:"cash_amount"`
	Currency   string            `json:"currency,omitempty"`
	Source     string            `json:"source,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SplitEvent is a share split keyed by (symbol, market, ex_date).
type SplitEvent struct {
	Symbol      string            `json:"symbol"`
	Market      MarketType        `json:"market"`
	ExDate      time.Time         `json:"ex_date"`
	Numerator   decimal.Decimal   `json:"numerator"`
	Denominator decimal.Decimal   `json:"denominator"`
	Source      string            `json:"source,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Ratio returns numerator/denominator, the price multiplier of the split.
func (s SplitEvent) Ratio() decimal.Decimal {
	return s.Numerator.Div(s.Denominator)
}

// CorporateActionSet holds the dividends and splits for one (symbol, market).
// The set is treated as an immutable value; merging produces a new set.
type CorporateActionSet struct {
	Dividends []DividendEvent `json:"dividends"`
	Splits    []SplitEvent    `json:"splits"`
}

// Empty reports whether the set carries no events at all.
func (c CorporateActionSet) Empty() bool {
	return len(c.Dividends) == 0 && len(c.Splits) == 0
}
