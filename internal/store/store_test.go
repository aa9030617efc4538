package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vprism/vprism/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, EnsureSchema(context.Background(), db))
}

func TestAdjustmentUpsertReplacesOnRebuild(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewAdjustmentStore(db)

	build1 := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	row := AdjustmentRow{
		Market: "cn", SupplierSymbol: "CN:STOCK:SH600000",
		Date:             day(2024, 6, 3),
		QFQ:              decimal.RequireFromString("0.49"),
		HFQ:              decimal.RequireFromString("1"),
		Version:          "v1:abcdef123456",
		BuildTime:        build1,
		SourceEventsHash: "abcdef1234567890",
	}
	require.NoError(t, s.Upsert(ctx, []AdjustmentRow{row}))

	// A rebuild for the same date overwrites, not duplicates.
	row.QFQ = decimal.RequireFromString("0.5")
	row.Version = "v1:fedcba654321"
	require.NoError(t, s.Upsert(ctx, []AdjustmentRow{row}))

	got, err := s.Factors(ctx, "cn", "CN:STOCK:SH600000")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].QFQ.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "v1:fedcba654321", got[0].Version)
	assert.Equal(t, day(2024, 6, 3), got[0].Date)
	assert.True(t, got[0].BuildTime.Equal(build1))
}

func TestAdjustmentFactorsOrderedByDate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewAdjustmentStore(db)

	rows := []AdjustmentRow{
		{Market: "cn", SupplierSymbol: "X", Date: day(2024, 6, 5),
			QFQ: decimal.NewFromInt(1), HFQ: decimal.NewFromInt(2),
			Version: "v1:a", BuildTime: time.Now(), SourceEventsHash: "h"},
		{Market: "cn", SupplierSymbol: "X", Date: day(2024, 6, 3),
			QFQ: decimal.NewFromInt(1), HFQ: decimal.NewFromInt(1),
			Version: "v1:a", BuildTime: time.Now(), SourceEventsHash: "h"},
	}
	require.NoError(t, s.Upsert(ctx, rows))

	got, err := s.Factors(ctx, "cn", "X")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(2024, 6, 3), got[0].Date)
	assert.Equal(t, day(2024, 6, 5), got[1].Date)
}

func TestDriftAppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewDriftStore(db)

	created := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	rows := []DriftRow{
		{Date: day(2024, 6, 28), Market: "cn", Symbol: "CN:STOCK:SH600000",
			Metric: "close_z", Value: decimal.RequireFromString("2.5"),
			Status: "WARN", Window: 20, RunID: "run-1", CreatedAt: created},
		{Date: day(2024, 6, 28), Market: "cn", Symbol: "CN:STOCK:SH600000",
			Metric: "volume_z", Value: decimal.RequireFromString("0.1"),
			Status: "OK", Window: 20, RunID: "run-1", CreatedAt: created},
	}
	require.NoError(t, s.Append(ctx, rows))

	got, err := s.ByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "close_z", got[0].Metric)
	assert.Equal(t, "WARN", got[0].Status)
	assert.True(t, got[0].Value.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 20, got[1].Window)

	// Runs never overwrite each other.
	require.NoError(t, s.Append(ctx, []DriftRow{{
		Date: day(2024, 6, 29), Market: "cn", Symbol: "CN:STOCK:SH600000",
		Metric: "close_z", Value: decimal.Zero, Status: "OK",
		Window: 20, RunID: "run-2", CreatedAt: created,
	}}))
	got, err = s.ByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReconcileSaveRunWithDiffs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewReconcileStore(db)

	closeA := decimal.RequireFromString("10.5")
	closeB := decimal.RequireFromString("10.512")
	bp := decimal.RequireFromString("11.4")
	run := ReconRun{
		RunID: "run-7", CreatedAt: time.Date(2024, 7, 2, 8, 0, 0, 0, time.UTC),
		Market: "cn", StartDate: day(2024, 6, 1), EndDate: day(2024, 6, 30),
		SampledSymbols: 1, TotalSamples: 2,
		PassCount: 1, WarnCount: 0, FailCount: 1,
		P95CloseBPDiff: bp,
	}
	diffs := []ReconDiff{
		{Symbol: "CN:STOCK:SH600000", Date: day(2024, 6, 3),
			CloseA: &closeA, CloseB: &closeB, CloseBPDiff: &bp, Status: "FAIL"},
		{Symbol: "CN:STOCK:SH600000", Date: day(2024, 6, 4), Status: "FAIL"},
	}
	require.NoError(t, s.SaveRun(ctx, run, diffs))

	gotRun, err := s.Run(ctx, "run-7")
	require.NoError(t, err)
	assert.Equal(t, 1, gotRun.FailCount)
	assert.True(t, gotRun.P95CloseBPDiff.Equal(bp))
	assert.Equal(t, day(2024, 6, 1), gotRun.StartDate)

	gotDiffs, err := s.Diffs(ctx, "run-7")
	require.NoError(t, err)
	require.Len(t, gotDiffs, 2)
	require.NotNil(t, gotDiffs[0].CloseA)
	assert.True(t, gotDiffs[0].CloseA.Equal(closeA))
	assert.Nil(t, gotDiffs[1].CloseA, "missing side stays nil")
	assert.Equal(t, "FAIL", gotDiffs[1].Status)
}

func TestSymbolMapFirstWriteWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewSymbolMapStore(db)

	sym := models.ResolvedSymbol{
		Raw: "600000.SS", Canonical: "CN:STOCK:SH600000",
		Market: models.MarketCN, Asset: models.AssetStock,
		RuleID: "cn_stock_yfinance", ProviderHint: "yfinance",
	}
	created := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordMapping(ctx, sym, created))

	// Replay with a different canonical is ignored.
	dup := sym
	dup.Canonical = "CN:STOCK:DIFFERENT"
	require.NoError(t, s.RecordMapping(ctx, dup, created.Add(time.Hour)))

	got, ok, err := s.Lookup(ctx, "600000.SS", models.MarketCN, models.AssetStock)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CN:STOCK:SH600000", got.Canonical)
	assert.Equal(t, "cn_stock_yfinance", got.RuleID)
	assert.Equal(t, "yfinance", got.ProviderHint)

	_, ok, err = s.Lookup(ctx, "missing", models.MarketCN, models.AssetStock)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPointsUpsertAndQuery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewPointsStore(db)
	s.SetClock(func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) })

	points := []models.DataPoint{
		{Symbol: "CN:STOCK:SH600000", Market: models.MarketCN,
			Timestamp: day(2024, 6, 3),
			Close:     models.Dec("10.50"), Volume: models.Dec("1000"),
			Provider: "akshare"},
		{Symbol: "CN:STOCK:SH600000", Market: models.MarketCN,
			Timestamp: day(2024, 6, 4),
			Close:     models.Dec("10.70"), Volume: models.Dec("1200"),
			Provider: "akshare"},
	}
	require.NoError(t, s.Upsert(ctx, models.Timeframe1d, points))

	// Same bar again with a revised close replaces the row.
	points[1].Close = models.Dec("10.80")
	require.NoError(t, s.Upsert(ctx, models.Timeframe1d, points[1:]))

	start, end := day(2024, 6, 1), day(2024, 6, 30)
	got, err := s.Query(ctx, models.DataQuery{
		Asset: models.AssetStock, Market: models.MarketCN,
		Timeframe: models.Timeframe1d,
		Start:     &start, End: &end,
		Symbols: []string{"CN:STOCK:SH600000"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(2024, 6, 3), got[0].Timestamp)
	assert.True(t, got[1].Close.Equal(*models.Dec("10.80")))
	assert.Nil(t, got[0].Open, "absent fields stay nil")
	assert.Equal(t, "akshare", got[0].Provider)
}

func TestPointsQueryRespectsBoundsAndSymbols(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewPointsStore(db)

	require.NoError(t, s.Upsert(ctx, models.Timeframe1d, []models.DataPoint{
		{Symbol: "A", Market: models.MarketCN, Timestamp: day(2024, 6, 3), Close: models.Dec("1")},
		{Symbol: "A", Market: models.MarketCN, Timestamp: day(2024, 6, 10), Close: models.Dec("2")},
		{Symbol: "B", Market: models.MarketCN, Timestamp: day(2024, 6, 3), Close: models.Dec("3")},
	}))

	start, end := day(2024, 6, 1), day(2024, 6, 5)
	got, err := s.Query(ctx, models.DataQuery{
		Asset: models.AssetStock, Market: models.MarketCN,
		Timeframe: models.Timeframe1d,
		Start:     &start, End: &end,
		Symbols: []string{"A"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Symbol)
	assert.Equal(t, day(2024, 6, 3), got[0].Timestamp)
}

func TestPointsLatestReturnsTrailingWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewPointsStore(db)

	var points []models.DataPoint
	for i := 1; i <= 5; i++ {
		points = append(points, models.DataPoint{
			Symbol: "A", Market: models.MarketCN,
			Timestamp: day(2024, 6, i),
			Close:     models.Dec("10"),
		})
	}
	require.NoError(t, s.Upsert(ctx, models.Timeframe1d, points))

	got, err := s.Latest(ctx, "cn", "A", models.Timeframe1d, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, day(2024, 6, 3), got[0].Timestamp)
	assert.Equal(t, day(2024, 6, 5), got[2].Timestamp)
}
