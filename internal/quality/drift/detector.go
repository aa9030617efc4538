// Package drift flags statistical anomalies in a close/volume series by
// comparing the latest bar against a rolling baseline.
package drift

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/store"
)

// Metric statuses.
const (
	StatusOK   = "OK"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

// HistoryLoader supplies the trailing price history for one instrument,
// ascending by timestamp, with close and volume populated. n is the
// number of bars requested; returning more is fine, fewer is an error
// surfaced by the detector.
type HistoryLoader interface {
	History(ctx context.Context, market, symbol string, n int) ([]models.DataPoint, error)
}

// Writer persists the metric rows of one run.
type Writer interface {
	Append(ctx context.Context, rows []store.DriftRow) error
}

// Config holds the z-score classification thresholds.
type Config struct {
	WarnThreshold decimal.Decimal
	FailThreshold decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		WarnThreshold: decimal.NewFromInt(2),
		FailThreshold: decimal.NewFromInt(3),
	}
}

// Metric is one named observation of a run.
type Metric struct {
	Name   string          `json:"name"`
	Value  decimal.Decimal `json:"value"`
	Status string          `json:"status"`
}

// Result is the outcome of one drift run over one instrument.
type Result struct {
	Symbol          string    `json:"symbol"`
	Market          string    `json:"market"`
	Window          int       `json:"window"`
	Metrics         []Metric  `json:"metrics"`
	LatestTimestamp time.Time `json:"latest_timestamp"`
	RunID           string    `json:"run_id"`
}

// Detector runs drift analysis. The writer is optional; without one,
// results are computed but not persisted.
type Detector struct {
	loader HistoryLoader
	writer Writer
	cfg    Config
	clock  func() time.Time
	runID  func() string
}

// Option configures a Detector.
type Option func(*Detector)

// WithWriter attaches a persistence target for metric rows.
func WithWriter(w Writer) Option { return func(d *Detector) { d.writer = w } }

// WithClock injects the run timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(d *Detector) { d.clock = clock }
}

// WithRunID injects the run-id factory.
func WithRunID(factory func() string) Option {
	return func(d *Detector) { d.runID = factory }
}

func NewDetector(loader HistoryLoader, cfg Config, opts ...Option) *Detector {
	d := &Detector{
		loader: loader,
		cfg:    cfg,
		clock:  time.Now,
		runID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run analyzes the latest bar of one instrument against a baseline of
// window bars. The loader must supply at least window+1 bars.
func (d *Detector) Run(ctx context.Context, market, symbol string, window int) (Result, error) {
	if window < 2 {
		return Result{}, errs.Validation("drift", "window must be at least 2",
			map[string]any{"window": window})
	}

	points, err := d.loader.History(ctx, market, symbol, window+1)
	if err != nil {
		return Result{}, err
	}
	if len(points) < window+1 {
		return Result{}, errs.DataQuality("drift", "insufficient history for drift analysis",
			map[string]any{"window": window, "received": len(points)})
	}

	sorted := make([]models.DataPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	sorted = sorted[len(sorted)-(window+1):]

	baseline := sorted[:window]
	latest := sorted[window]
	for _, p := range sorted {
		if p.Close == nil || p.Volume == nil {
			return Result{}, errs.DataQuality("drift", "history bar missing close or volume",
				map[string]any{"timestamp": p.Timestamp.Format(time.RFC3339)})
		}
	}

	closes := make([]decimal.Decimal, window)
	volumes := make([]decimal.Decimal, window)
	for i, p := range baseline {
		closes[i] = *p.Close
		volumes[i] = *p.Volume
	}

	closeMean, closeStd := meanStd(closes)
	volumeMean, volumeStd := meanStd(volumes)
	zClose := zScore(*latest.Close, closeMean, closeStd)
	zVolume := zScore(*latest.Volume, volumeMean, volumeStd)

	metrics := []Metric{
		{Name: "close_mean", Value: closeMean, Status: StatusOK},
		{Name: "close_std", Value: closeStd, Status: StatusOK},
		{Name: "volume_mean", Value: volumeMean, Status: StatusOK},
		{Name: "volume_std", Value: volumeStd, Status: StatusOK},
		{Name: "zscore_latest_close", Value: zClose, Status: d.classify(zClose)},
		{Name: "zscore_latest_volume", Value: zVolume, Status: d.classify(zVolume)},
	}

	res := Result{
		Symbol:          symbol,
		Market:          market,
		Window:          window,
		Metrics:         metrics,
		LatestTimestamp: latest.Timestamp,
		RunID:           d.runID(),
	}

	if d.writer != nil {
		if err := d.persist(ctx, res); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("drift metric persistence failed")
		}
	}
	return res, nil
}

func (d *Detector) classify(z decimal.Decimal) string {
	abs := z.Abs()
	switch {
	case abs.GreaterThanOrEqual(d.cfg.FailThreshold):
		return StatusFail
	case abs.GreaterThanOrEqual(d.cfg.WarnThreshold):
		return StatusWarn
	default:
		return StatusOK
	}
}

func (d *Detector) persist(ctx context.Context, res Result) error {
	createdAt := d.clock().UTC()
	rows := make([]store.DriftRow, len(res.Metrics))
	for i, m := range res.Metrics {
		rows[i] = store.DriftRow{
			Date:      res.LatestTimestamp.UTC().Truncate(24 * time.Hour),
			Market:    res.Market,
			Symbol:    res.Symbol,
			Metric:    m.Name,
			Value:     m.Value,
			Status:    m.Status,
			Window:    res.Window,
			RunID:     res.RunID,
			CreatedAt: createdAt,
		}
	}
	return d.writer.Append(ctx, rows)
}

// WorstStatus reduces a result to its most severe metric status.
func (r Result) WorstStatus() string {
	worst := StatusOK
	for _, m := range r.Metrics {
		if m.Status == StatusFail {
			return StatusFail
		}
		if m.Status == StatusWarn {
			worst = StatusWarn
		}
	}
	return worst
}

func meanStd(values []decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	n := int64(len(values))
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	mean := sum.Div(decimal.NewFromInt(n))

	if n < 2 {
		return mean, decimal.Zero
	}
	sq := decimal.Zero
	for _, v := range values {
		d := v.Sub(mean)
		sq = sq.Add(d.Mul(d))
	}
	variance := sq.Div(decimal.NewFromInt(n - 1))
	f, _ := variance.Float64()
	return mean, decimal.NewFromFloat(math.Sqrt(f))
}

func zScore(latest, mean, std decimal.Decimal) decimal.Decimal {
	if std.IsZero() {
		return decimal.Zero
	}
	return latest.Sub(mean).Div(std)
}
