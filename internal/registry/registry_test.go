package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/provider"
)

func stockCap() provider.Capability {
	return provider.Capability{
		Assets:               []models.AssetType{models.AssetStock},
		Markets:              []models.MarketType{models.MarketCN},
		Timeframes:           []models.Timeframe{models.Timeframe1d},
		MaxSymbolsPerRequest: 100,
		SupportsHistorical:   true,
	}
}

func stockQuery() models.DataQuery {
	return models.DataQuery{
		Asset:     models.AssetStock,
		Market:    models.MarketCN,
		Timeframe: models.Timeframe1d,
		Symbols:   []string{"600000"},
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New()
	require.Error(t, r.Register(nil, nil))

	m := provider.NewMock("", stockCap(), nil)
	require.Error(t, r.Register(m, nil))

	require.NoError(t, r.Register(provider.NewMock("p1", stockCap(), nil), nil))
	assert.Equal(t, []string{"p1"}, r.Names())
	assert.True(t, r.Healthy("p1"))
	assert.Equal(t, 1.0, r.Score("p1"))
}

func TestFindCapableFiltersAndSorts(t *testing.T) {
	r := New()
	p1 := provider.NewMock("p1", stockCap(), nil)
	p2 := provider.NewMock("p2", stockCap(), nil)
	p3 := provider.NewMock("p3", provider.Capability{
		Assets: []models.AssetType{models.AssetCrypto},
	}, nil)
	require.NoError(t, r.Register(p1, nil))
	require.NoError(t, r.Register(p2, nil))
	require.NoError(t, r.Register(p3, nil))

	r.UpdateScore("p2", true, 100) // p2 pulls ahead
	got := r.FindCapable(stockQuery())
	require.Len(t, got, 2, "capability mismatch excluded")
	assert.Equal(t, "p2", got[0].Name())
	assert.Equal(t, "p1", got[1].Name())

	r.UpdateHealth("p2", false)
	got = r.FindCapable(stockQuery())
	require.Len(t, got, 1, "unhealthy excluded")
	assert.Equal(t, "p1", got[0].Name())

	q := stockQuery()
	q.Provider = "p2"
	assert.Empty(t, r.FindCapable(q), "pinned provider unhealthy")
}

func TestUpdateScoreClamps(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(provider.NewMock("p", stockCap(), nil), nil))

	// Success with low latency moves the score up.
	r.UpdateScore("p", true, 500)
	assert.InDelta(t, 1.05, r.Score("p"), 1e-9)

	// Repeated failures clamp at the floor.
	for i := 0; i < 10; i++ {
		r.UpdateScore("p", false, 5000)
	}
	assert.Equal(t, MinScore, r.Score("p"))

	// Repeated fast successes clamp at the ceiling.
	for i := 0; i < 30; i++ {
		r.UpdateScore("p", true, 0)
	}
	assert.Equal(t, MaxScore, r.Score("p"))
}

func TestCheckAllHealth(t *testing.T) {
	r := New()
	good := provider.NewMock("good", stockCap(), nil)
	bad := provider.NewMock("bad", stockCap(), nil)
	bad.SetHealthy(false)
	require.NoError(t, r.Register(good, nil))
	require.NoError(t, r.Register(bad, nil))

	results := r.CheckAllHealth(context.Background())
	assert.True(t, results["good"])
	assert.False(t, results["bad"])
	assert.True(t, r.Healthy("good"))
	assert.False(t, r.Healthy("bad"))
}

func TestSnapshot(t *testing.T) {
	r := New()
	r.SetClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) })
	require.NoError(t, r.Register(provider.NewMock("a", stockCap(), nil), &Settings{Priority: 1}))
	require.NoError(t, r.Register(provider.NewMock("b", stockCap(), nil), nil))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Name)
	assert.Equal(t, 1.0, snap[0].Score)

	prio, ok := r.Priority("a")
	assert.True(t, ok)
	assert.Equal(t, 1, prio)
	_, ok = r.Priority("b")
	assert.False(t, ok)

	r.Unregister("a")
	assert.Len(t, r.Snapshot(), 1)
}
