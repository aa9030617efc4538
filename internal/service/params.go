package service

import (
	"time"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// QueryParams is the string-typed public parameter set a caller (CLI,
// HTTP) supplies before validation.
type QueryParams struct {
	Symbols   []string
	Asset     string
	Market    string
	Provider  string
	Timeframe string
	Start     string // YYYY-MM-DD
	End       string // YYYY-MM-DD
	Adjust    string
}

// defaultLookbackDays is applied when no start date is given.
const defaultLookbackDays = 30

// BuildQuery parses public parameters into a validated DataQuery.
// Dates default to end=today and start=end minus 30 days.
func BuildQuery(params QueryParams, now time.Time) (models.DataQuery, error) {
	asset, err := models.ParseAssetType(params.Asset)
	if err != nil {
		return models.DataQuery{}, errs.Validation("service", err.Error(),
			map[string]any{"asset": params.Asset})
	}
	market, err := models.ParseMarketType(params.Market)
	if err != nil {
		return models.DataQuery{}, errs.Validation("service", err.Error(),
			map[string]any{"market": params.Market})
	}
	tf, err := models.ParseTimeframe(params.Timeframe)
	if err != nil {
		return models.DataQuery{}, errs.Validation("service", err.Error(),
			map[string]any{"timeframe": params.Timeframe})
	}
	adjust, err := models.ParseAdjustMode(params.Adjust)
	if err != nil {
		return models.DataQuery{}, errs.Validation("service", err.Error(),
			map[string]any{"adjust": params.Adjust})
	}

	end, err := parseDate(params.End, "end")
	if err != nil {
		return models.DataQuery{}, err
	}
	if end == nil {
		d := now.UTC().Truncate(24 * time.Hour)
		end = &d
	}
	start, err := parseDate(params.Start, "start")
	if err != nil {
		return models.DataQuery{}, err
	}
	if start == nil {
		d := end.AddDate(0, 0, -defaultLookbackDays)
		start = &d
	}

	q := models.DataQuery{
		Asset:     asset,
		Market:    market,
		Provider:  params.Provider,
		Timeframe: tf,
		Start:     start,
		End:       end,
		Symbols:   params.Symbols,
		Adjust:    adjust,
	}
	if err := q.Validate(); err != nil {
		return models.DataQuery{}, errs.Validation("service", err.Error(), nil)
	}
	return q, nil
}

func parseDate(s, field string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, errs.Validation("service", "date must be YYYY-MM-DD",
			map[string]any{field: s})
	}
	return &d, nil
}
