// Package adjust builds corporate-action adjustment factors and applies
// them to price series. Factors are deterministic for a given close
// series and action set, so rebuilt runs memoize on their fingerprints.
package adjust

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// PriceLoader yields the bar series for one instrument window.
type PriceLoader interface {
	Prices(ctx context.Context, market models.MarketType, symbol string, start, end time.Time) ([]models.DataPoint, error)
}

// ActionLoader yields the corporate actions affecting one instrument
// window.
type ActionLoader interface {
	Actions(ctx context.Context, market models.MarketType, symbol string, start, end time.Time) (models.CorporateActionSet, error)
}

// FactorWriter persists one finished build.
type FactorWriter interface {
	Persist(ctx context.Context, res Result) error
}

// Factor carries the per-date multipliers for one instrument.
// HFQ anchors at the first bar; QFQ anchors at the last bar, so the
// latest QFQ factor is always exactly 1.
type Factor struct {
	Date time.Time
	HFQ  decimal.Decimal
	QFQ  decimal.Decimal
}

// Row pairs one bar with its raw and adjusted closes. Close columns are
// nil when the bar carried no close.
type Row struct {
	Date      time.Time
	CloseRaw  *decimal.Decimal
	CloseQFQ  *decimal.Decimal
	CloseHFQ  *decimal.Decimal
	FactorQFQ decimal.Decimal
	FactorHFQ decimal.Decimal
}

// Request identifies one factor-build window.
type Request struct {
	Symbol string
	Market models.MarketType
	Start  time.Time
	End    time.Time
	Mode   models.AdjustMode
}

func (r Request) validate() error {
	if r.Symbol == "" {
		return errs.Validation("adjustment", "symbol is required", nil)
	}
	if r.Start.After(r.End) {
		return errs.Validation("adjustment", "start is after end", map[string]any{
			"start": r.Start.Format("2006-01-02"),
			"end":   r.End.Format("2006-01-02"),
		})
	}
	return nil
}

// Result is one factor build.
type Result struct {
	Symbol           string
	Market           models.MarketType
	Mode             models.AdjustMode
	Rows             []Row
	Factors          []Factor
	Version          string
	SourceEventsHash string
	BuildTime        time.Time
	// ActionGap is set when an event could not be priced in: a dividend
	// ex-date had no preceding close, or an ex-date had no bar at all.
	// Such events are skipped, not guessed.
	ActionGap bool
}

type memoKey struct {
	symbol      string
	market      models.MarketType
	start       string
	end         string
	mode        models.AdjustMode
	algoVersion string
	priceCount  int
	priceFP     string
	eventsHash  string
}

// Engine computes factor builds, memoized per window and input identity.
// Run pulls inputs through the configured loaders; Build takes an
// already-loaded series directly.
type Engine struct {
	prices  PriceLoader
	actions ActionLoader
	writer  FactorWriter

	mu    sync.Mutex
	memo  map[memoKey]Result
	clock func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSources provides the loaders Run reads through.
func WithSources(prices PriceLoader, actions ActionLoader) Option {
	return func(e *Engine) {
		e.prices = prices
		e.actions = actions
	}
}

// WithWriter persists every fresh build; memo hits were already written.
func WithWriter(w FactorWriter) Option { return func(e *Engine) { e.writer = w } }

// WithClock injects the build timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{memo: make(map[memoKey]Result), clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run builds factors for one window: prices and actions come from the
// loaders, the result goes to the writer when one is configured. Persist
// failures are logged; the computed result still returns.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if e.prices == nil || e.actions == nil {
		return Result{}, errs.New(errs.CodeSystem, "adjustment",
			"engine has no price or action source configured", nil)
	}

	prices, err := e.prices.Prices(ctx, req.Market, req.Symbol, req.Start, req.End)
	if err != nil {
		return Result{}, fmt.Errorf("load prices %s: %w", req.Symbol, err)
	}
	actions, err := e.actions.Actions(ctx, req.Market, req.Symbol, req.Start, req.End)
	if err != nil {
		return Result{}, fmt.Errorf("load corporate actions %s: %w", req.Symbol, err)
	}

	res, fresh, err := e.build(req.Symbol, req.Market, req.Mode,
		dayKey(req.Start), dayKey(req.End), prices, actions)
	if err != nil {
		return Result{}, err
	}
	if fresh && e.writer != nil {
		if err := e.writer.Persist(ctx, res); err != nil {
			log.Warn().Err(err).
				Str("symbol", req.Symbol).
				Str("version", res.Version).
				Msg("adjustment factor persistence failed")
		}
	}
	return res, nil
}

// Build computes factors for an already-loaded series. The window is
// implied by the first and last bar; prices are sorted internally so
// caller order is irrelevant.
func (e *Engine) Build(symbol string, market models.MarketType, mode models.AdjustMode, prices []models.DataPoint, actions models.CorporateActionSet) (Result, error) {
	res, _, err := e.build(symbol, market, mode, "", "", prices, actions)
	return res, err
}

func (e *Engine) build(symbol string, market models.MarketType, mode models.AdjustMode, start, end string, prices []models.DataPoint, actions models.CorporateActionSet) (Result, bool, error) {
	if len(prices) == 0 {
		return Result{}, false, errs.DataQuality("adjustment", "no prices to adjust",
			map[string]any{"symbol": symbol, "market": string(market)})
	}
	sorted := make([]models.DataPoint, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if start == "" {
		start = dayKey(sorted[0].Timestamp)
	}
	if end == "" {
		end = dayKey(sorted[len(sorted)-1].Timestamp)
	}

	merged := MergeActions(actions)
	eventsHash := SourceEventsHash(merged)
	key := memoKey{
		symbol:      symbol,
		market:      market,
		start:       start,
		end:         end,
		mode:        mode,
		algoVersion: AlgoVersion,
		priceCount:  len(sorted),
		priceFP:     priceFingerprint(sorted),
		eventsHash:  eventsHash,
	}

	e.mu.Lock()
	if cached, ok := e.memo[key]; ok {
		e.mu.Unlock()
		return cached, false, nil
	}
	e.mu.Unlock()

	factors, gap, err := computeFactors(sorted, merged)
	if err != nil {
		return Result{}, false, errs.DataQuality("adjustment", err.Error(),
			map[string]any{"symbol": symbol, "market": string(market)})
	}
	res := Result{
		Symbol:           symbol,
		Market:           market,
		Mode:             mode,
		Rows:             buildRows(sorted, factors),
		Factors:          factors,
		Version:          VersionFor(eventsHash),
		SourceEventsHash: eventsHash,
		BuildTime:        e.clock().UTC(),
		ActionGap:        gap,
	}

	e.mu.Lock()
	e.memo[key] = res
	e.mu.Unlock()
	return res, true, nil
}

func buildRows(prices []models.DataPoint, factors []Factor) []Row {
	rows := make([]Row, len(prices))
	for i, p := range prices {
		f := factors[i]
		row := Row{Date: f.Date, FactorQFQ: f.QFQ, FactorHFQ: f.HFQ}
		if p.Close != nil {
			raw := *p.Close
			row.CloseRaw = &raw
			row.CloseQFQ = scale(p.Close, f.QFQ)
			row.CloseHFQ = scale(p.Close, f.HFQ)
		}
		rows[i] = row
	}
	return rows
}

func computeFactors(prices []models.DataPoint, merged models.CorporateActionSet) ([]Factor, bool, error) {
	divByDay := map[string]decimal.Decimal{}
	for _, d := range merged.Dividends {
		divByDay[dayKey(d.ExDate)] = d.CashAmount
	}
	splitByDay := map[string]decimal.Decimal{}
	for _, s := range merged.Splits {
		splitByDay[dayKey(s.ExDate)] = s.Ratio()
	}
	priced := map[string]bool{}
	for _, p := range prices {
		priced[p.Timestamp.UTC().Format("2006-01-02")] = true
	}

	gap := false
	// Events dated outside the bar series cannot be applied anywhere.
	for day := range divByDay {
		if !priced[day] {
			gap = true
			log.Warn().Str("ex_date", day).Msg("dividend ex-date has no price bar, skipping")
		}
	}
	for day := range splitByDay {
		if !priced[day] {
			gap = true
			log.Warn().Str("ex_date", day).Msg("split ex-date has no price bar, skipping")
		}
	}

	one := decimal.NewFromInt(1)
	factors := make([]Factor, len(prices))
	hfq := one
	for i, p := range prices {
		day := dayKey(p.Timestamp)
		if i == 0 {
			if _, hasDiv := divByDay[day]; hasDiv {
				// No prior close to scale against.
				gap = true
				log.Warn().Str("ex_date", day).Msg("dividend on first bar has no previous close, skipping")
			}
			if ratio, ok := splitByDay[day]; ok {
				hfq = hfq.Mul(ratio)
			}
		} else {
			if cash, ok := divByDay[day]; ok {
				prevClose := prices[i-1].Close
				if prevClose == nil {
					gap = true
					log.Warn().Str("ex_date", day).Msg("dividend previous close missing, skipping")
				} else {
					denom := prevClose.Sub(cash)
					if !denom.IsPositive() {
						return nil, gap, fmt.Errorf("dividend %s on %s exceeds previous close %s",
							cash, day, prevClose)
					}
					hfq = hfq.Mul(prevClose.Div(denom))
				}
			}
			if ratio, ok := splitByDay[day]; ok {
				hfq = hfq.Mul(ratio)
			}
		}
		factors[i] = Factor{Date: p.Timestamp.UTC().Truncate(24 * time.Hour), HFQ: hfq}
	}

	last := factors[len(factors)-1].HFQ
	for i := range factors {
		factors[i].QFQ = factors[i].HFQ.Div(last)
	}
	return factors, gap, nil
}
