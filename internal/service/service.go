// Package service is the data-plane façade: it normalizes symbols,
// consults the cache, routes to providers with fallback, persists
// results, and applies corporate-action adjustment on demand.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vprism/vprism/internal/adjust"
	"github.com/vprism/vprism/internal/cache"
	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/metrics"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/registry"
	"github.com/vprism/vprism/internal/router"
	"github.com/vprism/vprism/internal/store"
	"github.com/vprism/vprism/internal/symbols"
)

// Response source tags beyond provider names.
const (
	SourceCache      = "cache"
	SourceRepository = "repository"
)

// Service orchestrates one read end to end. The service owns the
// registry; the router receives it at construction.
type Service struct {
	symbols     *symbols.Engine
	registry    *registry.Registry
	router      *router.Router
	cache       cache.Cache
	points      *store.PointsStore
	adjustments *store.AdjustmentStore
	metrics     *metrics.Set
	clock       func() time.Time
	log         zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache attaches the query cache tier.
func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

// WithRepository attaches the embedded point store used for write-through
// persistence and the provider-outage fallback read.
func WithRepository(p *store.PointsStore) Option {
	return func(s *Service) { s.points = p }
}

// WithAdjustments attaches the factor store so responses can be adjusted
// on demand.
func WithAdjustments(a *store.AdjustmentStore) Option {
	return func(s *Service) { s.adjustments = a }
}

// WithMetrics attaches the collector set.
func WithMetrics(m *metrics.Set) Option { return func(s *Service) { s.metrics = m } }

// WithClock injects the timestamp source for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func New(engine *symbols.Engine, reg *registry.Registry, rt *router.Router, opts ...Option) *Service {
	s := &Service{
		symbols:  engine,
		registry: reg,
		router:   rt,
		clock:    time.Now,
		log:      log.With().Str("component", "service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the owned registry for health snapshots and setup.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Symbols exposes the normalization engine for the resolve surface.
func (s *Service) Symbols() *symbols.Engine { return s.symbols }

// GetData executes one query: normalize, cache, route, persist, adjust.
func (s *Service) GetData(ctx context.Context, q models.DataQuery) (*models.DataResponse, error) {
	started := s.clock()
	if err := q.Validate(); err != nil {
		return nil, errs.Validation("service", err.Error(), nil)
	}

	q = s.resolve(ctx, q)

	if s.cache != nil {
		if points, ok := s.cache.Get(ctx, q); ok {
			if s.metrics != nil {
				s.metrics.CacheHits.Inc()
			}
			return s.respond(ctx, q, &models.DataResponse{
				Points:   points,
				Source:   models.ResponseSource{Name: SourceCache},
				CacheHit: true,
			}, 0)
		}
		if s.metrics != nil {
			s.metrics.CacheMisses.Inc()
		}
	}

	resp, routeErr := s.router.Execute(ctx, q)
	if routeErr != nil {
		fallback, ok := s.fromRepository(ctx, q)
		if !ok {
			return nil, routeErr
		}
		s.log.Warn().Err(routeErr).Msg("all providers failed, serving repository data")
		return s.respond(ctx, q, fallback, s.clock().Sub(started))
	}

	if s.points != nil {
		if err := s.points.Upsert(ctx, q.Timeframe, resp.Points); err != nil {
			// A failed write never poisons the read.
			s.log.Warn().Err(err).Msg("point persistence failed")
		}
	}
	if s.cache != nil {
		s.cache.Set(ctx, q, resp.Points)
	}
	return s.respond(ctx, q, resp, s.clock().Sub(started))
}

// resolve runs batch normalization and records the canonical symbols on
// the query. Unresolved symbols keep their raw form; partial resolution
// never fails a fetch.
func (s *Service) resolve(ctx context.Context, q models.DataQuery) models.DataQuery {
	if s.symbols == nil || len(q.Canonical) > 0 {
		return q
	}
	result := s.symbols.NormalizeBatch(ctx, q.Symbols, q.Market, q.Asset)
	resolved := make(map[string]string, len(result.Resolved))
	for _, r := range result.Resolved {
		resolved[r.Raw] = r.Canonical
	}
	if s.metrics != nil {
		s.metrics.UnresolvedSymbols.Add(float64(len(result.Unresolved)))
	}

	canonical := make([]string, len(q.Symbols))
	for i, raw := range q.Symbols {
		if c, ok := resolved[raw]; ok {
			canonical[i] = c
		} else {
			canonical[i] = raw
		}
	}
	q.Canonical = canonical
	return q
}

func (s *Service) fromRepository(ctx context.Context, q models.DataQuery) (*models.DataResponse, bool) {
	if s.points == nil {
		return nil, false
	}
	points, err := s.points.Query(ctx, q)
	if err != nil {
		s.log.Warn().Err(err).Msg("repository fallback query failed")
		return nil, false
	}
	if len(points) == 0 {
		return nil, false
	}
	return &models.DataResponse{
		Points: points,
		Source: models.ResponseSource{Name: SourceRepository},
	}, true
}

// respond finalizes a response: adjustment on demand, timing, duration
// metric. Cache hits carry zero query time.
func (s *Service) respond(ctx context.Context, q models.DataQuery, resp *models.DataResponse, elapsed time.Duration) (*models.DataResponse, error) {
	points, err := s.applyAdjustment(ctx, q, resp.Points)
	if err != nil {
		return nil, err
	}
	resp.Points = points
	resp.QueryTime = elapsed
	resp.FetchedAt = s.clock().UTC()
	if s.metrics != nil {
		s.metrics.RequestDuration.Observe(elapsed.Seconds())
	}
	return resp, nil
}

// applyAdjustment scales closes by stored factors when the query asks
// for an adjusted series. Symbols without stored factors pass through.
func (s *Service) applyAdjustment(ctx context.Context, q models.DataQuery, points []models.DataPoint) ([]models.DataPoint, error) {
	if q.Adjust == "" || q.Adjust == models.AdjustNone || s.adjustments == nil || len(points) == 0 {
		return points, nil
	}

	bySymbol := make(map[string][]int)
	for i, p := range points {
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], i)
	}

	out := make([]models.DataPoint, len(points))
	copy(out, points)
	for symbol, idx := range bySymbol {
		rows, err := s.adjustments.Factors(ctx, string(q.Market), symbol)
		if err != nil {
			return nil, errs.DataQuality("service", "adjustment factor load failed",
				map[string]any{"symbol": symbol}).WithCause(err)
		}
		if len(rows) == 0 {
			continue
		}
		factors := make([]adjust.Factor, len(rows))
		for i, row := range rows {
			factors[i] = adjust.Factor{Date: row.Date, HFQ: row.HFQ, QFQ: row.QFQ}
		}
		group := make([]models.DataPoint, len(idx))
		for i, j := range idx {
			group[i] = out[j]
		}
		adjusted := adjust.Apply(group, factors, q.Adjust)
		for i, j := range idx {
			out[j] = adjusted[i]
		}
	}
	return out, nil
}

// BatchItem is one outcome of a batch call.
type BatchItem struct {
	Response *models.DataResponse
	Err      error
}

// batchConcurrency bounds parallel queries within one batch call.
const batchConcurrency = 8

// GetBatch executes queries concurrently and returns a map keyed by a
// synthetic per-input id ("q0", "q1", ...). One failure never aborts
// siblings.
func (s *Service) GetBatch(ctx context.Context, queries []models.DataQuery) map[string]BatchItem {
	items := make([]BatchItem, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			resp, err := s.GetData(ctx, q)
			items[i] = BatchItem{Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]BatchItem, len(items))
	for i, item := range items {
		out[fmt.Sprintf("q%d", i)] = item
	}
	return out
}
