package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vprism/vprism/internal/models"
)

func dailyStockCapability() Capability {
	return Capability{
		Assets:               []models.AssetType{models.AssetStock, models.AssetETF},
		Markets:              []models.MarketType{models.MarketCN, models.MarketUS},
		Timeframes:           []models.Timeframe{models.Timeframe1d, models.Timeframe1w},
		MaxSymbolsPerRequest: 10,
		SupportsHistorical:   true,
		MaxHistoryDays:       365,
	}
}

func TestCapabilityCanHandle(t *testing.T) {
	cap := dailyStockCapability()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	q := models.DataQuery{
		Asset:     models.AssetStock,
		Market:    models.MarketCN,
		Timeframe: models.Timeframe1d,
		Symbols:   []string{"600000"},
	}
	assert.True(t, cap.CanHandle(q, now))

	q.Asset = models.AssetCrypto
	assert.False(t, cap.CanHandle(q, now), "unsupported asset")
	q.Asset = models.AssetStock

	q.Market = models.MarketHK
	assert.False(t, cap.CanHandle(q, now), "unsupported market")
	q.Market = ""
	assert.True(t, cap.CanHandle(q, now), "unset market is not required")

	q.Timeframe = models.Timeframe1m
	assert.False(t, cap.CanHandle(q, now), "unsupported timeframe")
	q.Timeframe = models.Timeframe1d

	q.Symbols = make([]string, 11)
	for i := range q.Symbols {
		q.Symbols[i] = "S"
	}
	assert.False(t, cap.CanHandle(q, now), "too many symbols")
	q.Symbols = []string{"600000"}

	tooOld := now.AddDate(-2, 0, 0)
	q.Start = &tooOld
	assert.False(t, cap.CanHandle(q, now), "beyond max history")

	recent := now.AddDate(0, 0, -30)
	q.Start = &recent
	assert.True(t, cap.CanHandle(q, now))

	cap.SupportsHistorical = false
	assert.False(t, cap.CanHandle(q, now), "historical unsupported")
}

func TestAuthConfigValidity(t *testing.T) {
	assert.True(t, AuthConfig{Type: AuthNone}.Valid())
	assert.True(t, AuthConfig{}.Valid())
	assert.False(t, AuthConfig{Type: AuthAPIKey}.Valid())
	assert.True(t, AuthConfig{Type: AuthAPIKey, APIKey: "k"}.Valid())
	assert.False(t, AuthConfig{Type: AuthBasic, Username: "u"}.Valid())
	assert.True(t, AuthConfig{Type: AuthBasic, Username: "u", Password: "p"}.Valid())
	assert.True(t, AuthConfig{Type: AuthOAuth2, ClientID: "c", ClientSecret: "s"}.Valid())
	assert.False(t, AuthConfig{Type: "mystery"}.Valid())
}

func TestAuthConfigHeaders(t *testing.T) {
	h := AuthConfig{Type: AuthAPIKey, APIKey: "k123"}.Headers()
	assert.Equal(t, "k123", h["X-API-Key"])

	h = AuthConfig{Type: AuthBearer, Token: "t"}.Headers()
	assert.Equal(t, "Bearer t", h["Authorization"])

	h = AuthConfig{Type: AuthBasic, Username: "user", Password: "pass"}.Headers()
	assert.Equal(t, "Basic dXNlcjpwYXNz", h["Authorization"])

	h = AuthConfig{Type: AuthOAuth2, ClientID: "c", ClientSecret: "s", AccessToken: "at"}.Headers()
	assert.Equal(t, "Bearer at", h["Authorization"])
}

func TestRateLimitConfigValidate(t *testing.T) {
	require.NoError(t, DefaultRateLimit().Validate())

	bad := DefaultRateLimit()
	bad.RequestsPerMinute = 0
	require.Error(t, bad.Validate())

	assert.Equal(t, time.Second, RateLimitConfig{RequestsPerMinute: 60}.MinDelay())
}

func TestRollingWindowStrictLimits(t *testing.T) {
	w := &window{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, w.allow(now, 2, 10))
	assert.True(t, w.allow(now.Add(time.Second), 2, 10))
	assert.False(t, w.allow(now.Add(2*time.Second), 2, 10), "per-minute limit is strict")

	// A minute later the per-minute window has rolled over.
	assert.True(t, w.allow(now.Add(70*time.Second), 2, 10))
}

func TestRollingWindowHourlyPrune(t *testing.T) {
	w := &window{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.True(t, w.allow(now.Add(time.Duration(i)*time.Minute), 10, 3))
	}
	assert.False(t, w.allow(now.Add(4*time.Minute), 10, 3), "per-hour limit is strict")

	// Entries age out of the rolling hour.
	assert.True(t, w.allow(now.Add(61*time.Minute), 10, 3))
	assert.Equal(t, 3, w.size())
}

func TestBaseAcquireBoundsConcurrency(t *testing.T) {
	limits := DefaultRateLimit()
	limits.ConcurrentRequests = 1
	b := NewBase("test", AuthConfig{}, limits)

	release, err := b.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Acquire(ctx)
	require.Error(t, err, "second slot blocked until release")

	release()
	release2, err := b.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestMockProvider(t *testing.T) {
	pts := []models.DataPoint{{
		Symbol: "CN:STOCK:SH600000", Market: models.MarketCN,
		Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Close:     models.Dec("10.5"),
	}}
	m := NewMock("mock", dailyStockCapability(), pts)

	resp, err := m.GetData(context.Background(), models.DataQuery{
		Asset: models.AssetStock, Symbols: []string{"600000"},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Points, 1)
	assert.Equal(t, "mock", resp.Source.Name)

	_, err = m.StreamData(context.Background(), models.DataQuery{})
	require.Error(t, err)

	assert.True(t, m.HealthCheck(context.Background()))
	m.SetHealthy(false)
	assert.False(t, m.HealthCheck(context.Background()))
}
