package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vprism/vprism/internal/errs"
)

func fastClient(name string, handler http.Handler, limits RateLimitConfig, auth AuthConfig) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewHTTPClient(name, srv.Client(), auth, limits)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c, srv
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	limits := DefaultRateLimit()
	c, srv := fastClient("p", handler, limits, AuthConfig{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPClientAuthFailureNotRetried(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	c, srv := fastClient("p", handler, DefaultRateLimit(), AuthConfig{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errs.CodeAuthentication, errs.CodeOf(err))
	assert.False(t, errs.IsRetryable(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPClientRateLimitExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	limits := DefaultRateLimit()
	limits.MaxRetries = 2
	c, srv := fastClient("p", handler, limits, AuthConfig{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errs.CodeRateLimit, errs.CodeOf(err))
	assert.False(t, errs.IsRetryable(err), "no retries remain")
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPClientInjectsAuthHeaders(t *testing.T) {
	var gotKey string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		w.WriteHeader(http.StatusOK)
	})
	c, srv := fastClient("p", handler, DefaultRateLimit(),
		AuthConfig{Type: AuthAPIKey, APIKey: "secret-key"})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "secret-key", gotKey)
}

func TestHTTPClientNonRetryableClientError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c, srv := fastClient("p", handler, DefaultRateLimit(), AuthConfig{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, errs.CodeProvider, errs.CodeOf(err))
	assert.False(t, errs.IsRetryable(err))
}
