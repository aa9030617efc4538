package provider

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds a provider's outbound request rate.
type RateLimitConfig struct {
	RequestsPerMinute  int     `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour    int     `yaml:"requests_per_hour" json:"requests_per_hour"`
	ConcurrentRequests int     `yaml:"concurrent_requests" json:"concurrent_requests"`
	BackoffFactor      float64 `yaml:"backoff_factor" json:"backoff_factor"`
	MaxRetries         int     `yaml:"max_retries" json:"max_retries"`
}

// DefaultRateLimit is a conservative default for free-tier upstreams.
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute:  60,
		RequestsPerHour:    1000,
		ConcurrentRequests: 5,
		BackoffFactor:      2.0,
		MaxRetries:         3,
	}
}

// Validate rejects non-positive limits.
func (r RateLimitConfig) Validate() error {
	if r.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be positive, got %d", r.RequestsPerMinute)
	}
	if r.RequestsPerHour <= 0 {
		return fmt.Errorf("requests_per_hour must be positive, got %d", r.RequestsPerHour)
	}
	if r.ConcurrentRequests <= 0 {
		return fmt.Errorf("concurrent_requests must be positive, got %d", r.ConcurrentRequests)
	}
	if r.BackoffFactor <= 0 {
		return fmt.Errorf("backoff_factor must be positive, got %g", r.BackoffFactor)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", r.MaxRetries)
	}
	return nil
}

// MinDelay is the derived minimum gap between requests: 60s / rpm.
func (r RateLimitConfig) MinDelay() time.Duration {
	if r.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(r.RequestsPerMinute)
}

// window tracks request timestamps over a rolling hour. The per-minute and
// per-hour checks are strict: a window already at the limit rejects.
type window struct {
	mu  sync.Mutex
	log []time.Time
}

// allow checks both rolling windows and records now on success.
func (w *window) allow(now time.Time, perMinute, perHour int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)

	if perHour > 0 && len(w.log) >= perHour {
		return false
	}
	if perMinute > 0 {
		minuteAgo := now.Add(-time.Minute)
		var lastMinute int
		for i := len(w.log) - 1; i >= 0; i-- {
			if w.log[i].Before(minuteAgo) {
				break
			}
			lastMinute++
		}
		if lastMinute >= perMinute {
			return false
		}
	}
	w.log = append(w.log, now)
	return true
}

// prune drops entries older than one hour; caller holds the lock.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(w.log) && w.log[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.log = append(w.log[:0], w.log[i:]...)
	}
}

func (w *window) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.log)
}
