package drift

import (
	"context"
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
	points []models.DataPoint
	err    error
}

func (l stubLoader) History(_ context.Context, _, _ string, _ int) ([]models.DataPoint, error) {
	return l.points, l.err
}

type captureWriter struct {
	rows []store.DriftRow
	err  error
}

func (w *captureWriter) Append(_ context.Context, rows []store.DriftRow) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, rows...)
	return nil
}

func series(closes []string, volumes []string) []models.DataPoint {
	points := make([]models.DataPoint, len(closes))
	for i := range closes {
		points[i] = models.DataPoint{
			Symbol: "CN:STOCK:SH600000", Market: models.MarketCN,
			Timestamp: time.Date(2024, 6, 1+i, 0, 0, 0, 0, time.UTC),
			Close:     models.Dec(closes[i]),
			Volume:    models.Dec(volumes[i]),
		}
	}
	return points
}

func metricByName(t *testing.T, res Result, name string) Metric {
	t.Helper()
	for _, m := range res.Metrics {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("metric %s not found", name)
	return Metric{}
}

func TestRunWarnClassification(t *testing.T) {
	// Baseline [10, 11, 12], latest 13: mean 11, std 1, z exactly 2.
	loader := stubLoader{points: series(
		[]string{"10", "11", "12", "13"},
		[]string{"1000", "1000", "1000", "1000"},
	)}
	d := NewDetector(loader, DefaultConfig(), WithRunID(func() string { return "run-1" }))

	res, err := d.Run(context.Background(), "cn", "CN:STOCK:SH600000", 3)
	require.NoError(t, err)
	require.Len(t, res.Metrics, 6)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), res.LatestTimestamp)

	closeMean := metricByName(t, res, "close_mean")
	assert.True(t, closeMean.Value.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, StatusOK, closeMean.Status)

	closeStd := metricByName(t, res, "close_std")
	assert.True(t, closeStd.Value.Equal(decimal.NewFromInt(1)))

	zClose := metricByName(t, res, "zscore_latest_close")
	assert.True(t, zClose.Value.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, StatusWarn, zClose.Status)

	// Constant baseline volume means zero stddev, z pinned at 0.
	zVolume := metricByName(t, res, "zscore_latest_volume")
	assert.True(t, zVolume.Value.IsZero())
	assert.Equal(t, StatusOK, zVolume.Status)

	assert.Equal(t, StatusWarn, res.WorstStatus())
}

func TestRunFailClassification(t *testing.T) {
	loader := stubLoader{points: series(
		[]string{"10", "11", "12", "15"},
		[]string{"1000", "1000", "1000", "1000"},
	)}
	d := NewDetector(loader, DefaultConfig())

	res, err := d.Run(context.Background(), "cn", "X", 3)
	require.NoError(t, err)
	zClose := metricByName(t, res, "zscore_latest_close")
	assert.True(t, zClose.Value.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, StatusFail, zClose.Status)
	assert.Equal(t, StatusFail, res.WorstStatus())
}

func TestRunConstantBaselineIsOK(t *testing.T) {
	loader := stubLoader{points: series(
		[]string{"10", "10", "10", "99"},
		[]string{"1000", "1000", "1000", "1000"},
	)}
	d := NewDetector(loader, DefaultConfig())

	res, err := d.Run(context.Background(), "cn", "X", 3)
	require.NoError(t, err)
	zClose := metricByName(t, res, "zscore_latest_close")
	assert.True(t, zClose.Value.IsZero())
	assert.Equal(t, StatusOK, zClose.Status)
}

func TestRunInsufficientHistory(t *testing.T) {
	loader := stubLoader{points: series(
		[]string{"10", "11"},
		[]string{"1000", "1000"},
	)}
	d := NewDetector(loader, DefaultConfig())

	_, err := d.Run(context.Background(), "cn", "X", 3)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeDataQuality, e.Code)
	assert.Equal(t, 3, e.Context["window"])
	assert.Equal(t, 2, e.Context["received"])
}

func TestRunRejectsTinyWindow(t *testing.T) {
	d := NewDetector(stubLoader{}, DefaultConfig())
	_, err := d.Run(context.Background(), "cn", "X", 1)
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
}

func TestRunMissingVolumeFails(t *testing.T) {
	points := series([]string{"10", "11", "12", "13"}, []string{"1", "1", "1", "1"})
	points[1].Volume = nil
	d := NewDetector(stubLoader{points: points}, DefaultConfig())

	_, err := d.Run(context.Background(), "cn", "X", 3)
	require.Error(t, err)
	assert.Equal(t, errs.CodeDataQuality, errs.CodeOf(err))
}

func TestRunUsesTrailingWindow(t *testing.T) {
	// Seven bars supplied for a window of 3: only the trailing four count.
	loader := stubLoader{points: series(
		[]string{"1", "2", "3", "10", "11", "12", "13"},
		[]string{"1", "1", "1", "1000", "1000", "1000", "1000"},
	)}
	d := NewDetector(loader, DefaultConfig())

	res, err := d.Run(context.Background(), "cn", "X", 3)
	require.NoError(t, err)
	closeMean := metricByName(t, res, "close_mean")
	assert.True(t, closeMean.Value.Equal(decimal.NewFromInt(11)))
}

func TestRunPersistsOneRowPerMetric(t *testing.T) {
	loader := stubLoader{points: series(
		[]string{"10", "11", "12", "13"},
		[]string{"1000", "1000", "1000", "1000"},
	)}
	w := &captureWriter{}
	created := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	d := NewDetector(loader, DefaultConfig(),
		WithWriter(w),
		WithClock(func() time.Time { return created }),
		WithRunID(func() string { return "run-9" }))

	res, err := d.Run(context.Background(), "cn", "CN:STOCK:SH600000", 3)
	require.NoError(t, err)
	require.Len(t, w.rows, 6)
	for _, row := range w.rows {
		assert.Equal(t, "run-9", row.RunID)
		assert.Equal(t, 3, row.Window)
		assert.Equal(t, "cn", row.Market)
		assert.True(t, row.CreatedAt.Equal(created))
		assert.Equal(t, res.LatestTimestamp.Truncate(24*time.Hour), row.Date)
	}
}

func TestRunSurvivesWriterFailure(t *testing.T) {
	loader := stubLoader{points: series(
		[]string{"10", "11", "12", "13"},
		[]string{"1000", "1000", "1000", "1000"},
	)}
	w := &captureWriter{err: assert.AnError}
	d := NewDetector(loader, DefaultConfig(), WithWriter(w))

	res, err := d.Run(context.Background(), "cn", "X", 3)
	require.NoError(t, err, "persistence failure does not poison the result")
	assert.Len(t, res.Metrics, 6)
}
