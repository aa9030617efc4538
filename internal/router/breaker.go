package router

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds the per-provider circuit-breaker tuning.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenMaxCalls uint32        `yaml:"half_open_max_calls" json:"half_open_max_calls"`
}

// DefaultBreakerConfig matches the routing contract: open after 5
// consecutive failures, probe after 60s, close after 3 half-open successes.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// breakerSet lazily creates one circuit breaker per provider. Breaker
// state transitions are serialized inside gobreaker; this set only guards
// the map.
type breakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerSet(cfg BreakerConfig) *breakerSet {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	return &breakerSet{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (s *breakerSet) get(name string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[name]; ok {
		return cb
	}
	threshold := s.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.cfg.HalfOpenMaxCalls,
		Timeout:     s.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	s.breakers[name] = cb
	return cb
}

// open reports whether the provider's breaker currently blocks requests.
func (s *breakerSet) open(name string) bool {
	return s.get(name).State() == gobreaker.StateOpen
}

// state exposes the breaker state string for health snapshots.
func (s *breakerSet) state(name string) string {
	return s.get(name).State().String()
}
