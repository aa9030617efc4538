package reconcile

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/store"
)

type stubLoader struct {
	series map[string][]models.DataPoint
	err    error
}

func (l stubLoader) Series(_ context.Context, _, symbol string, _, _ time.Time) ([]models.DataPoint, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.series[symbol], nil
}

type captureWriter struct {
	run   store.ReconRun
	diffs []store.ReconDiff
	calls int
}

func (w *captureWriter) SaveRun(_ context.Context, run store.ReconRun, diffs []store.ReconDiff) error {
	w.run = run
	w.diffs = diffs
	w.calls++
	return nil
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func bars(closes, volumes map[int]string) []models.DataPoint {
	var points []models.DataPoint
	for d, c := range closes {
		points = append(points, models.DataPoint{
			Symbol: "BBB", Market: models.MarketCN, Timestamp: day(d),
			Close: models.Dec(c), Volume: models.Dec(volumes[d]),
		})
	}
	return points
}

func mixedScenario() (stubLoader, stubLoader) {
	a := stubLoader{series: map[string][]models.DataPoint{
		"BBB": bars(
			map[int]string{1: "100", 2: "100.06", 3: "100.12"},
			map[int]string{1: "1000", 2: "1000", 3: "1800"},
		),
	}}
	b := stubLoader{series: map[string][]models.DataPoint{
		"BBB": bars(
			map[int]string{1: "100", 2: "100", 3: "100"},
			map[int]string{1: "1000", 2: "1000", 3: "900"},
		),
	}}
	return a, b
}

func newTestSampler(a, b stubLoader, opts ...Option) *Sampler {
	base := []Option{
		WithRNG(rand.New(rand.NewSource(1))),
		WithClock(func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }),
		WithRunID(func() string { return "run-1" }),
	}
	return NewSampler(a, b, DefaultConfig(), append(base, opts...)...)
}

func TestRunMixedStatuses(t *testing.T) {
	a, b := mixedScenario()
	s := newTestSampler(a, b)

	res, err := s.Run(context.Background(), Request{
		Symbols: []string{"BBB"}, Market: "cn",
		Start: day(1), End: day(3),
	})
	require.NoError(t, err)
	require.Len(t, res.Samples, 3)

	assert.Equal(t, StatusPass, res.Samples[0].Status)
	assert.Equal(t, StatusWarn, res.Samples[1].Status)
	assert.Equal(t, StatusFail, res.Samples[2].Status)

	require.NotNil(t, res.Samples[1].CloseBPDiff)
	assert.True(t, res.Samples[1].CloseBPDiff.Round(2).Equal(decimal.NewFromInt(6)))
	require.NotNil(t, res.Samples[2].VolumeRatio)
	assert.True(t, res.Samples[2].VolumeRatio.Equal(decimal.NewFromInt(2)))

	assert.Equal(t, 1, res.PassCount)
	assert.Equal(t, 1, res.WarnCount)
	assert.Equal(t, 1, res.FailCount)
	assert.True(t, res.P95CloseBPDiff.Round(4).Equal(decimal.RequireFromString("11.4")),
		"p95 = %s", res.P95CloseBPDiff)
}

func TestRunIdenticalSeriesAllPass(t *testing.T) {
	series := map[string][]models.DataPoint{
		"BBB": bars(
			map[int]string{1: "100", 2: "101", 3: "102"},
			map[int]string{1: "1000", 2: "1100", 3: "1200"},
		),
	}
	s := newTestSampler(stubLoader{series: series}, stubLoader{series: series})

	res, err := s.Run(context.Background(), Request{
		Symbols: []string{"BBB"}, Market: "cn",
		Start: day(1), End: day(3),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.PassCount)
	assert.Zero(t, res.WarnCount)
	assert.Zero(t, res.FailCount)
	assert.True(t, res.P95CloseBPDiff.IsZero())
}

func TestRunMissingDateFails(t *testing.T) {
	a := stubLoader{series: map[string][]models.DataPoint{
		"BBB": bars(map[int]string{1: "100", 2: "100"}, map[int]string{1: "1000", 2: "1000"}),
	}}
	b := stubLoader{series: map[string][]models.DataPoint{
		"BBB": bars(map[int]string{1: "100"}, map[int]string{1: "1000"}),
	}}
	s := newTestSampler(a, b)

	res, err := s.Run(context.Background(), Request{
		Symbols: []string{"BBB"}, Market: "cn", Start: day(1), End: day(3),
	})
	require.NoError(t, err)
	require.Len(t, res.Samples, 2)
	assert.Equal(t, StatusPass, res.Samples[0].Status)
	assert.Equal(t, StatusFail, res.Samples[1].Status)
	assert.Nil(t, res.Samples[1].CloseB)
}

func TestRunValidation(t *testing.T) {
	s := newTestSampler(stubLoader{}, stubLoader{})

	_, err := s.Run(context.Background(), Request{Market: "cn", Start: day(1), End: day(3)})
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))

	_, err = s.Run(context.Background(), Request{
		Symbols: []string{"BBB"}, Market: "cn", Start: day(3), End: day(1),
	})
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))

	_, err = s.Run(context.Background(), Request{
		Symbols: []string{"BBB"}, Market: "cn", Start: day(1), End: day(3), SampleSize: -1,
	})
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
}

func TestRunDeduplicatesSymbolsPreservingOrder(t *testing.T) {
	a, b := mixedScenario()
	s := newTestSampler(a, b)

	res, err := s.Run(context.Background(), Request{
		Symbols: []string{"BBB", "BBB", "BBB"}, Market: "cn",
		Start: day(1), End: day(3),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"BBB"}, res.SampledSymbols)
	assert.Len(t, res.Samples, 3, "each date compared once")
}

func TestRunSamplesLargeSymbolSets(t *testing.T) {
	series := map[string][]models.DataPoint{}
	var symbols []string
	for _, sym := range []string{"A", "B", "C", "D", "E"} {
		symbols = append(symbols, sym)
		series[sym] = bars(map[int]string{1: "100"}, map[int]string{1: "1000"})
	}
	s := NewSampler(stubLoader{series: series}, stubLoader{series: series},
		DefaultConfig(), WithRNG(rand.New(rand.NewSource(7))))

	res, err := s.Run(context.Background(), Request{
		Symbols: symbols, Market: "cn", Start: day(1), End: day(1), SampleSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, res.SampledSymbols, 2)
	assert.Len(t, res.Samples, 2)
}

func TestRunPersistsRunAndDiffs(t *testing.T) {
	a, b := mixedScenario()
	w := &captureWriter{}
	s := newTestSampler(a, b, WithWriter(w))

	res, err := s.Run(context.Background(), Request{
		Symbols: []string{"BBB"}, Market: "cn", Start: day(1), End: day(3),
	})
	require.NoError(t, err)
	require.Equal(t, 1, w.calls)
	assert.Equal(t, res.RunID, w.run.RunID)
	assert.Equal(t, 1, w.run.SampledSymbols)
	assert.Equal(t, 3, w.run.TotalSamples)
	assert.Equal(t, 1, w.run.FailCount)
	assert.True(t, w.run.P95CloseBPDiff.Equal(res.P95CloseBPDiff))
	require.Len(t, w.diffs, 3)
	assert.Equal(t, "BBB", w.diffs[0].Symbol)
}

func TestP95Interpolation(t *testing.T) {
	vals := []decimal.Decimal{
		decimal.NewFromInt(12), decimal.NewFromInt(0), decimal.NewFromInt(6),
	}
	assert.True(t, p95(vals).Round(4).Equal(decimal.RequireFromString("11.4")))

	assert.True(t, p95(nil).IsZero())
	assert.True(t, p95([]decimal.Decimal{decimal.NewFromInt(7)}).Equal(decimal.NewFromInt(7)))
}
