package symbols

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// DefaultCacheSize bounds the resolution LRU.
const DefaultCacheSize = 10000

// Sink receives every freshly-resolved mapping for persistence.
// Implementations use insert-or-ignore semantics on (raw, market, asset).
type Sink interface {
	RecordMapping(ctx context.Context, sym models.ResolvedSymbol, createdAt time.Time) error
}

type cacheKey struct {
	raw    string
	market models.MarketType
	asset  models.AssetType
}

// Engine evaluates the rule set with an LRU cache in front. Reload swaps
// the whole rule set under a writer-exclusive lock and empties the cache,
// so concurrent callers always observe a consistent (rules, cache) pair.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
	cache *lru.Cache[cacheKey, models.ResolvedSymbol]

	statsMu    sync.Mutex
	requests   int64
	hits       int64
	misses     int64
	unresolved int64
	ruleUsage  map[string]int64

	sink  Sink
	clock func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink attaches a persistence sink for fresh resolutions.
func WithSink(s Sink) Option { return func(e *Engine) { e.sink = s } }

// WithClock injects the timestamp source used for persisted mappings.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithCacheSize overrides the LRU bound.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		cache, err := lru.New[cacheKey, models.ResolvedSymbol](n)
		if err == nil {
			e.cache = cache
		}
	}
}

// NewEngine builds an engine over the given rules.
func NewEngine(rules []Rule, opts ...Option) (*Engine, error) {
	sorted, err := validateRules(rules)
	if err != nil {
		return nil, err
	}
	cache, _ := lru.New[cacheKey, models.ResolvedSymbol](DefaultCacheSize)
	e := &Engine{
		rules:     sorted,
		cache:     cache,
		ruleUsage: make(map[string]int64),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Normalize resolves one raw symbol for (market, asset). Idempotent for a
// fixed rule set; cache hits return the previously computed value.
func (e *Engine) Normalize(ctx context.Context, raw string, market models.MarketType, asset models.AssetType) (models.ResolvedSymbol, error) {
	raw = strings.TrimSpace(raw)
	key := cacheKey{raw: raw, market: market, asset: asset}

	e.statsMu.Lock()
	e.requests++
	e.statsMu.Unlock()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if cached, ok := e.cache.Get(key); ok {
		e.statsMu.Lock()
		e.hits++
		e.statsMu.Unlock()
		return cached, nil
	}
	e.statsMu.Lock()
	e.misses++
	e.statsMu.Unlock()

	evaluated := make([]string, 0, len(e.rules))
	for _, rule := range e.rules {
		if !rule.applicable(market, asset) {
			continue
		}
		evaluated = append(evaluated, rule.ID)
		groups, ok := rule.match(raw)
		if !ok {
			continue
		}
		core, err := rule.Transform.Apply(raw, groups)
		if err != nil {
			return models.ResolvedSymbol{}, errs.Validation("symbols",
				fmt.Sprintf("rule %s transform failed: %v", rule.ID, err),
				map[string]any{"rule_id": rule.ID, "raw_symbol": raw})
		}
		core = rule.Prefix + core + rule.Suffix
		resolved := models.ResolvedSymbol{
			Raw:          raw,
			Canonical:    canonical(market, asset, core),
			Market:       market,
			Asset:        asset,
			RuleID:       rule.ID,
			ProviderHint: rule.ProviderHint,
		}
		e.statsMu.Lock()
		e.ruleUsage[rule.ID]++
		e.statsMu.Unlock()
		e.cache.Add(key, resolved)
		e.persist(ctx, resolved)
		return resolved, nil
	}

	e.statsMu.Lock()
	e.unresolved++
	e.statsMu.Unlock()
	return models.ResolvedSymbol{}, errs.Validation("symbols",
		fmt.Sprintf("no rule matched symbol %q", raw), map[string]any{
			"raw_symbol":      raw,
			"market":          string(market),
			"asset_type":      string(asset),
			"rules_evaluated": evaluated,
		})
}

func canonical(market models.MarketType, asset models.AssetType, core string) string {
	m := market
	if m == "" {
		m = models.MarketGlobal
	}
	return fmt.Sprintf("%s:%s:%s",
		strings.ToUpper(string(m)), strings.ToUpper(string(asset)), core)
}

func (e *Engine) persist(ctx context.Context, sym models.ResolvedSymbol) {
	if e.sink == nil {
		return
	}
	if err := e.sink.RecordMapping(ctx, sym, e.clock()); err != nil {
		log.Warn().Err(err).Str("symbol", sym.Raw).Msg("symbol mapping persistence failed")
	}
}

// BatchResult partitions a batch normalization, preserving input order.
type BatchResult struct {
	Resolved   []models.ResolvedSymbol
	Unresolved []UnresolvedSymbol
}

// UnresolvedSymbol pairs a raw input with its resolution error.
type UnresolvedSymbol struct {
	Raw string
	Err error
}

// NormalizeBatch resolves each symbol independently. Partial success never
// returns an error.
func (e *Engine) NormalizeBatch(ctx context.Context, raws []string, market models.MarketType, asset models.AssetType) BatchResult {
	var out BatchResult
	for _, raw := range raws {
		resolved, err := e.Normalize(ctx, raw, market, asset)
		if err != nil {
			out.Unresolved = append(out.Unresolved, UnresolvedSymbol{Raw: raw, Err: err})
			continue
		}
		out.Resolved = append(out.Resolved, resolved)
	}
	return out
}

// Reload replaces the whole rule set, clears the cache and usage stats.
// Invalid input leaves the engine untouched.
func (e *Engine) Reload(rules []Rule) error {
	sorted, err := validateRules(rules)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = sorted
	e.cache.Purge()
	e.statsMu.Lock()
	e.ruleUsage = make(map[string]int64)
	e.statsMu.Unlock()
	return nil
}

// Metrics is a snapshot of engine counters.
type Metrics struct {
	TotalRequests   int64            `json:"total_requests"`
	CacheHits       int64            `json:"cache_hits"`
	CacheMisses     int64            `json:"cache_misses"`
	HitRate         float64          `json:"hit_rate"`
	UnresolvedCount int64            `json:"unresolved_count"`
	RuleUsage       map[string]int64 `json:"rule_usage"`
}

// Metrics returns a copy of the current counters.
func (e *Engine) Metrics() Metrics {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	usage := make(map[string]int64, len(e.ruleUsage))
	for k, v := range e.ruleUsage {
		usage[k] = v
	}
	m := Metrics{
		TotalRequests:   e.requests,
		CacheHits:       e.hits,
		CacheMisses:     e.misses,
		UnresolvedCount: e.unresolved,
		RuleUsage:       usage,
	}
	if e.requests > 0 {
		m.HitRate = float64(e.hits) / float64(e.requests)
	}
	return m
}
