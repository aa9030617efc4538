// Package registry tracks the registered providers together with their
// health, performance score, and configuration.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/provider"
)

// Score bounds and deltas (clamped to [MinScore, MaxScore]).
const (
	MinScore       = 0.1
	MaxScore       = 2.0
	successDelta   = 0.1
	failurePenalty = 0.2
	latencyDivisor = 10000.0
)

// Settings is the per-provider configuration kept alongside registration.
type Settings struct {
	Auth      provider.AuthConfig      `yaml:"auth" json:"auth"`
	RateLimit provider.RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Priority  int                      `yaml:"priority" json:"priority"`
}

// Registry is the process-wide name → provider mapping with parallel
// health and score tracking. All mutations go through one mutex; provider
// calls themselves never hold it.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	health    map[string]bool
	scores    map[string]float64
	settings  map[string]*Settings
	clock     func() time.Time
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
		health:    make(map[string]bool),
		scores:    make(map[string]float64),
		settings:  make(map[string]*Settings),
		clock:     time.Now,
	}
}

// SetClock injects the timestamp source used for capability checks.
func (r *Registry) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// Register adds a provider. Health defaults to true and score to 1.0.
func (r *Registry) Register(p provider.Provider, cfg *Settings) error {
	if p == nil {
		return errs.Validation("registry", "cannot register nil provider", nil)
	}
	if p.Name() == "" {
		return errs.Validation("registry", "cannot register provider with empty name", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	r.providers[name] = p
	r.health[name] = true
	r.scores[name] = 1.0
	r.settings[name] = cfg
	return nil
}

// Unregister removes a provider and its tracked state.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
	delete(r.health, name)
	delete(r.scores, name)
	delete(r.settings, name)
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns all registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindCapable returns the healthy providers whose capability matches the
// query, in descending score order. A provider pin restricts to that name.
func (r *Registry) FindCapable(q models.DataQuery) []provider.Provider {
	r.mu.RLock()
	now := r.clock()
	type scored struct {
		p     provider.Provider
		score float64
	}
	var capable []scored
	for name, p := range r.providers {
		if q.Provider != "" && q.Provider != name {
			continue
		}
		if !r.health[name] {
			continue
		}
		if !p.Capability().CanHandle(q, now) {
			continue
		}
		capable = append(capable, scored{p: p, score: r.scores[name]})
	}
	r.mu.RUnlock()

	sort.SliceStable(capable, func(i, j int) bool {
		if capable[i].score != capable[j].score {
			return capable[i].score > capable[j].score
		}
		return capable[i].p.Name() < capable[j].p.Name()
	})
	out := make([]provider.Provider, len(capable))
	for i, s := range capable {
		out[i] = s.p
	}
	return out
}

// UpdateHealth marks a provider healthy or unhealthy.
func (r *Registry) UpdateHealth(name string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		r.health[name] = healthy
	}
}

// Healthy reports the tracked health of a provider.
func (r *Registry) Healthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health[name]
}

// UpdateScore applies the scoring rule: +0.1 − latency_ms/10000 on success,
// −0.2 on failure, clamped to [0.1, 2.0].
func (r *Registry) UpdateScore(name string, success bool, latencyMS float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	score, ok := r.scores[name]
	if !ok {
		return
	}
	if success {
		score += successDelta - latencyMS/latencyDivisor
	} else {
		score -= failurePenalty
	}
	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}
	r.scores[name] = score
}

// Score returns the tracked score of a provider (0 when unknown).
func (r *Registry) Score(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scores[name]
}

// Priority returns the configured routing priority, or 0 when unset.
func (r *Registry) Priority(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.settings[name]; s != nil && s.Priority > 0 {
		return s.Priority, true
	}
	return 0, false
}

// CheckAllHealth probes every provider concurrently and records the
// results. A panic or probe failure counts as unhealthy.
func (r *Registry) CheckAllHealth(ctx context.Context) map[string]bool {
	r.mu.RLock()
	probes := make(map[string]provider.Provider, len(r.providers))
	for name, p := range r.providers {
		probes[name] = p
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(probes))
	var resMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, p := range probes {
		name, p := name, p
		g.Go(func() error {
			ok := probeHealth(gctx, p)
			resMu.Lock()
			results[name] = ok
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for name, ok := range results {
		r.UpdateHealth(name, ok)
	}
	return results
}

func probeHealth(ctx context.Context, p provider.Provider) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.HealthCheck(ctx)
}

// HealthSnapshot is one provider's entry in the health report.
type HealthSnapshot struct {
	Name    string  `json:"name"`
	Healthy bool    `json:"healthy"`
	Score   float64 `json:"score"`
}

// Snapshot returns the current health/score view, sorted by name.
func (r *Registry) Snapshot() []HealthSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HealthSnapshot, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, HealthSnapshot{
			Name:    name,
			Healthy: r.health[name],
			Score:   r.scores[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
