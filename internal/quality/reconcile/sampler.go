// Package reconcile cross-checks two providers' price series over a
// sampled set of symbols and classifies the per-date differences.
package reconcile

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/store"
)

// Sample statuses.
const (
	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

// DefaultSampleSize bounds the number of symbols compared per run.
const DefaultSampleSize = 50

// SeriesLoader supplies one provider's series for one instrument within
// the date window, ascending by timestamp.
type SeriesLoader interface {
	Series(ctx context.Context, market, symbol string, start, end time.Time) ([]models.DataPoint, error)
}

// Writer persists one run with its diffs.
type Writer interface {
	SaveRun(ctx context.Context, run store.ReconRun, diffs []store.ReconDiff) error
}

// Config holds the classification thresholds.
type Config struct {
	CloseWarnBP decimal.Decimal
	CloseFailBP decimal.Decimal
	VolumeWarn  decimal.Decimal
	VolumeFail  decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		CloseWarnBP: decimal.NewFromInt(5),
		CloseFailBP: decimal.NewFromInt(10),
		VolumeWarn:  decimal.RequireFromString("1.2"),
		VolumeFail:  decimal.RequireFromString("1.5"),
	}
}

// Request describes one reconciliation run.
type Request struct {
	Symbols    []string
	Market     string
	Start      time.Time
	End        time.Time
	SampleSize int
}

// Sample is one compared date for one symbol. Pointer fields stay nil
// when that side had no value.
type Sample struct {
	Symbol      string           `json:"symbol"`
	Date        time.Time        `json:"date"`
	CloseA      *decimal.Decimal `json:"close_a,omitempty"`
	CloseB      *decimal.Decimal `json:"close_b,omitempty"`
	CloseBPDiff *decimal.Decimal `json:"close_bp_diff,omitempty"`
	VolumeA     *decimal.Decimal `json:"volume_a,omitempty"`
	VolumeB     *decimal.Decimal `json:"volume_b,omitempty"`
	VolumeRatio *decimal.Decimal `json:"volume_ratio,omitempty"`
	Status      string           `json:"status"`
}

// Result aggregates one run.
type Result struct {
	RunID          string          `json:"run_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Market         string          `json:"market"`
	SampledSymbols []string        `json:"sampled_symbols"`
	Samples        []Sample        `json:"samples"`
	PassCount      int             `json:"pass_count"`
	WarnCount      int             `json:"warn_count"`
	FailCount      int             `json:"fail_count"`
	P95CloseBPDiff decimal.Decimal `json:"p95_close_bp_diff"`
}

// Sampler runs two-provider reconciliation.
type Sampler struct {
	a, b   SeriesLoader
	writer Writer
	cfg    Config
	rng    *rand.Rand
	clock  func() time.Time
	runID  func() string
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithWriter attaches a persistence target.
func WithWriter(w Writer) Option { return func(s *Sampler) { s.writer = w } }

// WithRNG injects the sampling source so tests can seed it.
func WithRNG(rng *rand.Rand) Option { return func(s *Sampler) { s.rng = rng } }

// WithClock injects the run timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Sampler) { s.clock = clock }
}

// WithRunID injects the run-id factory.
func WithRunID(factory func() string) Option {
	return func(s *Sampler) { s.runID = factory }
}

func NewSampler(a, b SeriesLoader, cfg Config, opts ...Option) *Sampler {
	s := &Sampler{
		a: a, b: b, cfg: cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		clock: time.Now,
		runID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run compares the two sources over the requested window.
func (s *Sampler) Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Symbols) == 0 {
		return Result{}, errs.Validation("reconcile", "at least one symbol is required", nil)
	}
	if req.Start.After(req.End) {
		return Result{}, errs.Validation("reconcile", "start date after end date",
			map[string]any{
				"start": req.Start.Format("2006-01-02"),
				"end":   req.End.Format("2006-01-02"),
			})
	}
	size := req.SampleSize
	if size == 0 {
		size = DefaultSampleSize
	}
	if size < 0 {
		return Result{}, errs.Validation("reconcile", "sample size must be positive",
			map[string]any{"sample_size": req.SampleSize})
	}

	symbols := s.pick(dedupe(req.Symbols), size)

	res := Result{
		RunID:          s.runID(),
		CreatedAt:      s.clock().UTC(),
		Market:         req.Market,
		SampledSymbols: symbols,
	}

	var absDiffs []decimal.Decimal
	for _, symbol := range symbols {
		seriesA, err := s.a.Series(ctx, req.Market, symbol, req.Start, req.End)
		if err != nil {
			return Result{}, errs.Reconcile("source a load failed",
				map[string]any{"symbol": symbol}).WithCause(err)
		}
		seriesB, err := s.b.Series(ctx, req.Market, symbol, req.Start, req.End)
		if err != nil {
			return Result{}, errs.Reconcile("source b load failed",
				map[string]any{"symbol": symbol}).WithCause(err)
		}

		samples := s.compare(symbol, seriesA, seriesB, req.Start, req.End)
		for _, sample := range samples {
			switch sample.Status {
			case StatusPass:
				res.PassCount++
			case StatusWarn:
				res.WarnCount++
			case StatusFail:
				res.FailCount++
			}
			if sample.CloseBPDiff != nil {
				absDiffs = append(absDiffs, sample.CloseBPDiff.Abs())
			}
		}
		res.Samples = append(res.Samples, samples...)
	}

	res.P95CloseBPDiff = p95(absDiffs)

	if s.writer != nil {
		if err := s.persist(ctx, req, res); err != nil {
			log.Warn().Err(err).Str("run_id", res.RunID).Msg("reconciliation persistence failed")
		}
	}
	return res, nil
}

// pick returns up to size symbols. Small inputs pass through untouched;
// larger ones are sampled uniformly with input order preserved.
func (s *Sampler) pick(symbols []string, size int) []string {
	if len(symbols) <= size {
		return symbols
	}
	idx := s.rng.Perm(len(symbols))[:size]
	sort.Ints(idx)
	out := make([]string, size)
	for i, j := range idx {
		out[i] = symbols[j]
	}
	return out
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}

func (s *Sampler) compare(symbol string, seriesA, seriesB []models.DataPoint, start, end time.Time) []Sample {
	byDayA := indexByDay(seriesA, start, end)
	byDayB := indexByDay(seriesB, start, end)

	days := make([]string, 0, len(byDayA)+len(byDayB))
	seen := map[string]bool{}
	for day := range byDayA {
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	for day := range byDayB {
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	sort.Strings(days)

	samples := make([]Sample, 0, len(days))
	for _, day := range days {
		date, _ := time.ParseInLocation("2006-01-02", day, time.UTC)
		a, hasA := byDayA[day]
		b, hasB := byDayB[day]

		sample := Sample{Symbol: symbol, Date: date}
		if hasA {
			sample.CloseA = a.Close
			sample.VolumeA = a.Volume
		}
		if hasB {
			sample.CloseB = b.Close
			sample.VolumeB = b.Volume
		}

		if !hasA || !hasB {
			sample.Status = StatusFail
			samples = append(samples, sample)
			continue
		}

		closeStatus := StatusFail
		if sample.CloseA != nil && sample.CloseB != nil && !sample.CloseB.IsZero() {
			bp := sample.CloseA.Sub(*sample.CloseB).Div(*sample.CloseB).Mul(decimal.NewFromInt(10000))
			sample.CloseBPDiff = &bp
			abs := bp.Abs()
			switch {
			case abs.GreaterThanOrEqual(s.cfg.CloseFailBP):
				closeStatus = StatusFail
			case abs.GreaterThanOrEqual(s.cfg.CloseWarnBP):
				closeStatus = StatusWarn
			default:
				closeStatus = StatusPass
			}
		}

		volumeStatus := StatusFail
		if sample.VolumeA != nil && sample.VolumeB != nil && sample.VolumeB.IsPositive() {
			ratio := sample.VolumeA.Div(*sample.VolumeB)
			sample.VolumeRatio = &ratio
			if ratio.IsPositive() {
				deviation := ratio
				if inv := decimal.NewFromInt(1).Div(ratio); inv.GreaterThan(deviation) {
					deviation = inv
				}
				switch {
				case deviation.GreaterThanOrEqual(s.cfg.VolumeFail):
					volumeStatus = StatusFail
				case deviation.GreaterThanOrEqual(s.cfg.VolumeWarn):
					volumeStatus = StatusWarn
				default:
					volumeStatus = StatusPass
				}
			}
		}

		sample.Status = worse(closeStatus, volumeStatus)
		samples = append(samples, sample)
	}
	return samples
}

func indexByDay(series []models.DataPoint, start, end time.Time) map[string]models.DataPoint {
	out := make(map[string]models.DataPoint, len(series))
	for _, p := range series {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		out[p.Timestamp.UTC().Format("2006-01-02")] = p
	}
	return out
}

func severity(status string) int {
	switch status {
	case StatusFail:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

func worse(a, b string) string {
	if severity(a) >= severity(b) {
		return a
	}
	return b
}

// p95 interpolates linearly between sorted values at rank 0.95*(n-1).
func p95(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := decimal.RequireFromString("0.95").Mul(decimal.NewFromInt(int64(len(sorted) - 1)))
	lo := rank.Floor()
	frac := rank.Sub(lo)
	i := int(lo.IntPart())
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i].Add(sorted[i+1].Sub(sorted[i]).Mul(frac))
}

func (s *Sampler) persist(ctx context.Context, req Request, res Result) error {
	run := store.ReconRun{
		RunID:          res.RunID,
		CreatedAt:      res.CreatedAt,
		Market:         res.Market,
		StartDate:      req.Start,
		EndDate:        req.End,
		SampledSymbols: len(res.SampledSymbols),
		TotalSamples:   len(res.Samples),
		PassCount:      res.PassCount,
		WarnCount:      res.WarnCount,
		FailCount:      res.FailCount,
		P95CloseBPDiff: res.P95CloseBPDiff,
	}
	diffs := make([]store.ReconDiff, len(res.Samples))
	for i, sample := range res.Samples {
		diffs[i] = store.ReconDiff{
			RunID:       res.RunID,
			Symbol:      sample.Symbol,
			Date:        sample.Date,
			CloseA:      sample.CloseA,
			CloseB:      sample.CloseB,
			CloseBPDiff: sample.CloseBPDiff,
			VolumeA:     sample.VolumeA,
			VolumeB:     sample.VolumeB,
			VolumeRatio: sample.VolumeRatio,
			Status:      sample.Status,
		}
	}
	return s.writer.SaveRun(ctx, run, diffs)
}
