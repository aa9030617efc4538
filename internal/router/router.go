// Package router selects the best capable provider for a query and
// executes it with circuit breaking, scoring updates, and fallback.
package router

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/provider"
	"github.com/vprism/vprism/internal/registry"
)

// failureLatencyMS is the latency charged against a failed attempt.
const failureLatencyMS = 5000

// Config tunes selection and fallback.
type Config struct {
	MaxFallbackAttempts int            `yaml:"max_fallback_attempts" json:"max_fallback_attempts"`
	Priorities          map[string]int `yaml:"priorities" json:"priorities"`
	Breaker             BreakerConfig  `yaml:"breaker" json:"breaker"`
}

// DefaultConfig carries the default provider priority map (lower wins).
func DefaultConfig() Config {
	return Config{
		MaxFallbackAttempts: 3,
		Priorities: map[string]int{
			"vprism_native": 1,
			"yfinance":      2,
			"alpha_vantage": 2,
			"akshare":       3,
		},
		Breaker: DefaultBreakerConfig(),
	}
}

const unknownPriority = 4

// Router owns no providers; the service hands it the registry at
// construction, which keeps the service → router → registry edges acyclic.
type Router struct {
	reg      *registry.Registry
	cfg      Config
	breakers *breakerSet
	perf     *perfTracker
	log      zerolog.Logger
	clock    func() time.Time
}

// New builds a router over the given registry.
func New(reg *registry.Registry, cfg Config) *Router {
	if cfg.MaxFallbackAttempts <= 0 {
		cfg.MaxFallbackAttempts = DefaultConfig().MaxFallbackAttempts
	}
	return &Router{
		reg:      reg,
		cfg:      cfg,
		breakers: newBreakerSet(cfg.Breaker),
		perf:     newPerfTracker(),
		log:      log.With().Str("component", "router").Logger(),
		clock:    time.Now,
	}
}

// Select returns the best capable provider for the query, or a
// NO_PROVIDER_AVAILABLE error when none qualifies.
func (r *Router) Select(ctx context.Context, q models.DataQuery) (provider.Provider, error) {
	p, err := r.selectExcluding(ctx, q, nil)
	return p, err
}

func (r *Router) selectExcluding(_ context.Context, q models.DataQuery, exclude map[string]bool) (provider.Provider, error) {
	candidates := r.reg.FindCapable(q)
	if len(candidates) == 0 {
		return nil, errs.NoProviderAvailable("no provider can handle query",
			map[string]any{"asset": string(q.Asset), "market": string(q.Market)})
	}

	var best provider.Provider
	bestScore := -1.0
	for _, p := range candidates {
		name := p.Name()
		if exclude[name] {
			continue
		}
		if r.breakers.open(name) {
			continue
		}
		score := r.composite(p, q)
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	if best == nil {
		return nil, errs.NoProviderAvailable("all capable providers excluded or circuit-broken",
			map[string]any{"candidates": len(candidates)})
	}
	return best, nil
}

// composite blends priority, measured performance, and capability fit:
// 0.7×priority + 0.3×performance + 0.1×capability bonus.
func (r *Router) composite(p provider.Provider, q models.DataQuery) float64 {
	return 0.7*r.priorityScore(p.Name()) +
		0.3*r.perf.score(p.Name()) +
		0.1*capabilityBonus(p.Capability(), q)
}

func (r *Router) priorityScore(name string) float64 {
	prio := unknownPriority
	if p, ok := r.cfg.Priorities[name]; ok {
		prio = p
	} else if p, ok := r.reg.Priority(name); ok {
		prio = p
	}
	return float64(5-prio) / 4.0
}

func capabilityBonus(c provider.Capability, q models.DataQuery) float64 {
	bonus := 0.0
	if c.SupportsRealTime && !q.HasTimeBounds() {
		bonus += 0.2
	}
	switch {
	case c.DataDelaySeconds == 0:
		bonus += 0.3
	case c.DataDelaySeconds < 300:
		bonus += 0.1
	}
	if c.MaxSymbolsPerRequest > 0 {
		ratio := float64(len(q.QuerySymbols())) / float64(c.MaxSymbolsPerRequest)
		switch {
		case ratio <= 0.5:
			bonus += 0.2
		case ratio <= 0.8:
			bonus += 0.1
		}
	}
	if bonus > 1.0 {
		bonus = 1.0
	}
	return bonus
}

// Execute runs the query against the best provider, falling back to the
// next candidate on failure. Selection re-runs every attempt so breaker
// transitions and score updates steer the next pick. Cancellation stops
// further attempts immediately.
func (r *Router) Execute(ctx context.Context, q models.DataQuery) (*models.DataResponse, error) {
	attempted := make(map[string]bool)
	attemptOrder := make([]string, 0, r.cfg.MaxFallbackAttempts)
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxFallbackAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Timeout("router", "request cancelled").WithCause(err).
				WithContext("attempted_providers", attemptOrder)
		}

		p, err := r.selectExcluding(ctx, q, attempted)
		if err != nil {
			lastErr = err
			break
		}
		name := p.Name()
		attempted[name] = true
		attemptOrder = append(attemptOrder, name)

		start := r.clock()
		result, execErr := r.breakers.get(name).Execute(func() (interface{}, error) {
			return p.GetData(ctx, q)
		})
		latencyMS := float64(r.clock().Sub(start)) / float64(time.Millisecond)

		if execErr != nil {
			lastErr = execErr
			r.perf.record(name, false, failureLatencyMS)
			r.reg.UpdateScore(name, false, failureLatencyMS)
			r.reg.UpdateHealth(name, false)
			r.log.Warn().Err(execErr).
				Str("provider", name).
				Int("attempt", attempt+1).
				Msg("provider attempt failed, falling back")
			continue
		}

		resp := result.(*models.DataResponse)
		r.perf.record(name, true, latencyMS)
		r.reg.UpdateScore(name, true, latencyMS)
		r.log.Debug().
			Str("provider", name).
			Float64("latency_ms", latencyMS).
			Int("points", len(resp.Points)).
			Msg("provider attempt succeeded")
		return resp, nil
	}

	ctxMap := map[string]any{"attempted_providers": attemptOrder}
	if lastErr != nil {
		ctxMap["last_error"] = lastErr.Error()
	}
	return nil, errs.NoProviderAvailable("all providers failed for query", ctxMap).
		WithCause(lastErr)
}

// BreakerState exposes a provider's breaker state for health snapshots.
func (r *Router) BreakerState(name string) string {
	return r.breakers.state(name)
}

// PerformanceSnapshot reports (successRate, avgLatencyMS, requests).
func (r *Router) PerformanceSnapshot(name string) (float64, float64, int64) {
	return r.perf.snapshot(name)
}
