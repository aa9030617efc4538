package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/vprism/vprism/internal/models"
)

// Redis is the persistent slow-path cache tier. Every backend error is
// logged and treated as a miss; a dead Redis never blocks a read.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedis wraps an existing client. keyPrefix namespaces the entries.
func NewRedis(client redis.UniversalClient, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "vprism:cache:"
	}
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) key(q models.DataQuery) string {
	return r.keyPrefix + Fingerprint(q)
}

func (r *Redis) Get(ctx context.Context, q models.DataQuery) ([]models.DataPoint, bool) {
	raw, err := r.client.Get(ctx, r.key(q)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("redis cache get failed, treating as miss")
		}
		return nil, false
	}
	var points []models.DataPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		log.Warn().Err(err).Msg("redis cache entry corrupt, treating as miss")
		return nil, false
	}
	return points, true
}

func (r *Redis) Set(ctx context.Context, q models.DataQuery, points []models.DataPoint) {
	raw, err := json.Marshal(points)
	if err != nil {
		log.Warn().Err(err).Msg("redis cache marshal failed, skipping set")
		return
	}
	ttl := TTLFor(q.Timeframe)
	if err := r.client.Set(ctx, r.key(q), raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Dur("ttl", ttl).Msg("redis cache set failed")
	}
}

func (r *Redis) Invalidate(ctx context.Context, q models.DataQuery) {
	if err := r.client.Del(ctx, r.key(q)).Err(); err != nil {
		log.Warn().Err(err).Msg("redis cache invalidate failed")
	}
}

// Layered combines the memory fast path with a slow path. Reads check L1
// first and backfill it on an L2 hit; writes go through both tiers.
type Layered struct {
	l1 *Memory
	l2 Cache
}

// NewLayered builds the two-tier cache. l2 may be nil for memory-only use.
func NewLayered(l1 *Memory, l2 Cache) *Layered {
	return &Layered{l1: l1, l2: l2}
}

func (c *Layered) Get(ctx context.Context, q models.DataQuery) ([]models.DataPoint, bool) {
	if points, ok := c.l1.Get(ctx, q); ok {
		return points, true
	}
	if c.l2 == nil {
		return nil, false
	}
	points, ok := c.l2.Get(ctx, q)
	if !ok {
		return nil, false
	}
	c.l1.Set(ctx, q, points)
	return points, true
}

func (c *Layered) Set(ctx context.Context, q models.DataQuery, points []models.DataPoint) {
	c.l1.Set(ctx, q, points)
	if c.l2 != nil {
		c.l2.Set(ctx, q, points)
	}
}

func (c *Layered) Invalidate(ctx context.Context, q models.DataQuery) {
	c.l1.Invalidate(ctx, q)
	if c.l2 != nil {
		c.l2.Invalidate(ctx, q)
	}
}

// WaitHealthy pings the slow path with a short deadline, for startup checks.
func (r *Redis) WaitHealthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
