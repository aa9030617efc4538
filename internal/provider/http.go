package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vprism/vprism/internal/errs"
)

// HTTPClient wraps net/http with auth-header injection, retry on
// configured status codes, and exponential backoff per the provider's
// rate-limit config. HTTP-based provider adapters share one per provider.
type HTTPClient struct {
	name    string
	client  *http.Client
	auth    AuthConfig
	limits  RateLimitConfig
	retryOn map[int]bool
	sleep   func(ctx context.Context, d time.Duration) error
}

// DefaultRetryStatuses are the upstream responses worth retrying.
func DefaultRetryStatuses() map[int]bool {
	return map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
}

// NewHTTPClient builds a retrying client. A nil base client gets a 30s
// timeout; per-call timeouts are independent of the caller's deadline.
func NewHTTPClient(name string, base *http.Client, auth AuthConfig, limits RateLimitConfig) *HTTPClient {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		name:    name,
		client:  base,
		auth:    auth,
		limits:  limits,
		retryOn: DefaultRetryStatuses(),
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Do executes the request with retries. 401/403 surface as authentication
// failures; 429 surfaces as a rate-limit failure, retryable while retries
// remain. Transport errors and retryable statuses back off exponentially.
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	for k, v := range c.auth.Headers() {
		req.Header.Set(k, v)
	}

	var lastErr error
	maxAttempts := c.limits.MaxRetries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			log.Debug().
				Str("provider", c.name).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying provider request")
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, errs.Timeout("provider", "cancelled during retry backoff").
					WithContext("provider", c.name).WithCause(err)
			}
		}

		resp, err := c.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = c.classifyTransport(err)
			if !errs.IsRetryable(lastErr) {
				return nil, lastErr
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return nil, errs.Authentication(c.name,
				fmt.Sprintf("upstream rejected credentials: HTTP %d", resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			retryable := attempt < maxAttempts-1
			lastErr = errs.RateLimited(c.name, "upstream rate limit: HTTP 429", retryable)
			if !retryable {
				return nil, lastErr
			}
			continue
		case c.retryOn[resp.StatusCode] && attempt < maxAttempts-1:
			resp.Body.Close()
			lastErr = errs.Provider(c.name,
				fmt.Sprintf("upstream error: HTTP %d", resp.StatusCode), nil)
			continue
		case resp.StatusCode >= 400:
			resp.Body.Close()
			return nil, errs.Provider(c.name,
				fmt.Sprintf("upstream error: HTTP %d", resp.StatusCode), nil).
				WithRetryable(false)
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = errs.Provider(c.name, "request failed with no attempts", nil)
	}
	return nil, lastErr
}

func (c *HTTPClient) backoff(attempt int) time.Duration {
	base := time.Second
	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= c.limits.BackoffFactor
	}
	if max := 30 * time.Second; d > float64(max) {
		return max
	}
	return time.Duration(d)
}

func (c *HTTPClient) classifyTransport(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errs.Timeout("provider", err.Error()).WithContext("provider", c.name)
	}
	return errs.Network("provider", err.Error()).WithContext("provider", c.name)
}
