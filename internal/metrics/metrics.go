// Package metrics holds the Prometheus collectors for the data plane.
// Nothing registers globally; callers pass an explicit registerer so
// tests can use an isolated registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles every collector the platform emits.
type Set struct {
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	RouterAttempts    prometheus.Counter
	RouterFallbacks   prometheus.Counter
	UnresolvedSymbols prometheus.Counter
	ProviderLatency   *prometheus.HistogramVec
	RequestDuration   prometheus.Histogram
}

// New builds and registers the collector set.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vprism", Subsystem: "cache", Name: "hits_total",
			Help: "Cache lookups served without a provider call.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vprism", Subsystem: "cache", Name: "misses_total",
			Help: "Cache lookups that fell through to a provider.",
		}),
		RouterAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vprism", Subsystem: "router", Name: "attempts_total",
			Help: "Provider attempts made by the router.",
		}),
		RouterFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vprism", Subsystem: "router", Name: "fallbacks_total",
			Help: "Attempts beyond the first provider within one request.",
		}),
		UnresolvedSymbols: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vprism", Subsystem: "symbols", Name: "unresolved_total",
			Help: "Symbols no rule could normalize.",
		}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vprism", Subsystem: "provider", Name: "request_seconds",
			Help:    "Provider request latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vprism", Subsystem: "service", Name: "request_seconds",
			Help:    "End-to-end data request latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
	}
	reg.MustRegister(
		s.CacheHits, s.CacheMisses,
		s.RouterAttempts, s.RouterFallbacks,
		s.UnresolvedSymbols,
		s.ProviderLatency, s.RequestDuration,
	)
	return s
}
