// Package cache provides query-keyed caching of data points with
// timeframe-derived TTL bands, an in-memory fast path, and an optional
// Redis slow path.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/vprism/vprism/internal/models"
)

// Fingerprint derives the deterministic cache key of a query. Symbols are
// sorted before hashing so permutations of the same list share a key.
func Fingerprint(q models.DataQuery) string {
	symbols := append([]string(nil), q.QuerySymbols()...)
	sort.Strings(symbols)

	market := "none"
	if q.Market != "" {
		market = string(q.Market)
	}
	timeframe := "default"
	if q.Timeframe != "" {
		timeframe = string(q.Timeframe)
	}
	start, end := "", ""
	if q.Start != nil {
		start = q.Start.UTC().Format(time.RFC3339)
	}
	if q.End != nil {
		end = q.End.UTC().Format(time.RFC3339)
	}

	parts := []string{
		string(q.Asset),
		market,
		strings.Join(symbols, ","),
		timeframe,
		start,
		end,
		q.Provider,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// TTLFor maps a timeframe to its cache TTL band.
func TTLFor(tf models.Timeframe) time.Duration {
	switch tf {
	case models.TimeframeTick:
		return 5 * time.Second
	case models.Timeframe1m:
		return time.Minute
	case models.Timeframe5m:
		return 5 * time.Minute
	case models.Timeframe15m:
		return 15 * time.Minute
	case models.Timeframe30m:
		return 30 * time.Minute
	case models.Timeframe1h, models.Timeframe1d:
		return time.Hour
	case models.Timeframe1w, models.Timeframe1M:
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}
