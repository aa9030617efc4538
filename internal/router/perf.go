package router

import "sync"

// perfTracker keeps rolling success/latency aggregates per provider for the
// performance term of the composite score.
type perfTracker struct {
	mu    sync.Mutex
	stats map[string]*perfStats
}

type perfStats struct {
	requests  int64
	successes int64
	totalMS   float64
}

func newPerfTracker() *perfTracker {
	return &perfTracker{stats: make(map[string]*perfStats)}
}

func (t *perfTracker) record(name string, success bool, latencyMS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[name]
	if !ok {
		s = &perfStats{}
		t.stats[name] = s
	}
	s.requests++
	if success {
		s.successes++
	}
	s.totalMS += latencyMS
}

// score returns success_rate × (1 − min(avg_latency/5000, 0.5)), or the
// neutral 0.5 before any request has been recorded.
func (t *perfTracker) score(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[name]
	if !ok || s.requests == 0 {
		return 0.5
	}
	successRate := float64(s.successes) / float64(s.requests)
	avgLatency := s.totalMS / float64(s.requests)
	penalty := avgLatency / 5000.0
	if penalty > 0.5 {
		penalty = 0.5
	}
	return successRate * (1 - penalty)
}

// snapshot returns (successRate, avgLatencyMS, requests) for diagnostics.
func (t *perfTracker) snapshot(name string) (float64, float64, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[name]
	if !ok || s.requests == 0 {
		return 0, 0, 0
	}
	return float64(s.successes) / float64(s.requests), s.totalMS / float64(s.requests), s.requests
}
