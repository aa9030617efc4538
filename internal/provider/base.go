package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// Base carries the shared per-provider machinery: bounded concurrency, the
// rolling request window, token-bucket pacing, and the capability gate.
// Concrete providers embed it and implement GetData/StreamData/HealthCheck.
type Base struct {
	name    string
	auth    AuthConfig
	limits  RateLimitConfig
	sem     chan struct{}
	win     *window
	limiter *rate.Limiter
	clock   func() time.Time
}

// NewBase builds the shared machinery for one named provider.
func NewBase(name string, auth AuthConfig, limits RateLimitConfig) *Base {
	if limits.ConcurrentRequests <= 0 {
		limits.ConcurrentRequests = 1
	}
	var limiter *rate.Limiter
	if d := limits.MinDelay(); d > 0 {
		limiter = rate.NewLimiter(rate.Every(d), 1)
	}
	return &Base{
		name:    name,
		auth:    auth,
		limits:  limits,
		sem:     make(chan struct{}, limits.ConcurrentRequests),
		win:     &window{},
		limiter: limiter,
		clock:   time.Now,
	}
}

// SetClock injects a timestamp source for tests.
func (b *Base) SetClock(clock func() time.Time) { b.clock = clock }

// Name returns the stable provider identifier.
func (b *Base) Name() string { return b.name }

// Auth exposes the credential config for the HTTP helper.
func (b *Base) Auth() AuthConfig { return b.auth }

// Limits exposes the rate-limit config.
func (b *Base) Limits() RateLimitConfig { return b.limits }

// Authenticate reports whether the configured credentials are usable.
func (b *Base) Authenticate() bool { return b.auth.Valid() }

// Acquire takes a concurrency slot and checks the rolling rate windows.
// The returned release function must be called when the request finishes.
func (b *Base) Acquire(ctx context.Context) (func(), error) {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errs.Timeout("provider", "cancelled waiting for request slot").
			WithContext("provider", b.name).WithCause(ctx.Err())
	}
	release := func() { <-b.sem }

	if !b.win.allow(b.clock(), b.limits.RequestsPerMinute, b.limits.RequestsPerHour) {
		release()
		return nil, errs.RateLimited(b.name, "rolling rate window exceeded", true)
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			release()
			return nil, errs.Timeout("provider", "cancelled waiting for rate token").
				WithContext("provider", b.name).WithCause(err)
		}
	}
	return release, nil
}

// PendingRequests reports the rolling-hour request count, for diagnostics.
func (b *Base) PendingRequests() int { return b.win.size() }

// CanHandleQuery delegates to the capability.
func (b *Base) CanHandleQuery(c Capability, q models.DataQuery) bool {
	return c.CanHandle(q, b.clock())
}

// ErrStreamingUnsupported is the canonical StreamData failure for
// request/response-only providers.
func ErrStreamingUnsupported(name string) error {
	return errs.Provider(name, "streaming not supported", nil).WithRetryable(false)
}
