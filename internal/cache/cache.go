package cache

import (
	"context"

	"github.com/vprism/vprism/internal/models"
)

// Cache stores query results under fingerprint keys. Implementations are
// safe for concurrent use. Backend errors never surface to reads: they are
// logged and reported as misses, so a broken cache degrades to a
// pass-through.
type Cache interface {
	// Get returns the cached points for the query when a fresh entry exists.
	Get(ctx context.Context, q models.DataQuery) ([]models.DataPoint, bool)
	// Set stores the points under the query's fingerprint with the
	// timeframe's TTL band.
	Set(ctx context.Context, q models.DataQuery, points []models.DataPoint)
	// Invalidate drops the entry for this query, if any.
	Invalidate(ctx context.Context, q models.DataQuery)
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}
