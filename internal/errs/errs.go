// Package errs defines the single typed error carried across every layer of
// the data plane. Each error has a stable code, the layer it originated in,
// a retryable flag the router consults, and a free-form context map.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the stable machine-readable error class.
type Code string

const (
	CodeValidation          Code = "VALIDATION"
	CodeRouting             Code = "ROUTING"
	CodeProvider            Code = "PROVIDER"
	CodeRateLimit           Code = "RATE_LIMIT"
	CodeAuthentication      Code = "AUTHENTICATION"
	CodeNotFound            Code = "NOT_FOUND"
	CodeDataQuality         Code = "DATA_QUALITY"
	CodeReconcile           Code = "RECONCILE"
	CodeCache               Code = "CACHE"
	CodeNetwork             Code = "NETWORK"
	CodeTimeout             Code = "TIMEOUT"
	CodeNoProviderAvailable Code = "NO_PROVIDER_AVAILABLE"
	CodeCircuitBreakerOpen  Code = "CIRCUIT_BREAKER_OPEN"
	CodeSystem              Code = "SYSTEM"
)

// Error is the one error variant used throughout the core.
type Error struct {
	Code      Code
	Message   string
	Layer     string
	Retryable bool
	Context   map[string]any
	cause     error
}

// New builds an Error. The context map is copied, so callers can keep
// mutating the map they passed in.
func New(code Code, layer, message string, ctx map[string]any) *Error {
	return &Error{
		Code:    code,
		Layer:   layer,
		Message: message,
		Context: copyContext(ctx),
	}
}

func copyContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}

func (e *Error) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Layer, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for errors.Is / errors.As chains.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithContext adds one context entry and returns the same error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable overrides the retryable flag.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// secretKeys lists context keys whose values are never emitted.
var secretKeys = []string{
	"api_key", "apikey", "token", "access_token", "password", "secret",
	"client_secret", "authorization", "credential",
}

// Redacted returns a copy with secret-bearing context values masked.
func (e *Error) Redacted() *Error {
	out := *e
	out.Context = copyContext(e.Context)
	for k := range out.Context {
		lk := strings.ToLower(k)
		for _, s := range secretKeys {
			if strings.Contains(lk, s) {
				out.Context[k] = "REDACTED"
				break
			}
		}
	}
	return &out
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeSystem for untyped errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeSystem
}

// IsRetryable reports whether the router may retry after err.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// Validation builds a non-retryable validation error.
func Validation(layer, message string, ctx map[string]any) *Error {
	return New(CodeValidation, layer, message, ctx)
}

// Provider builds a retryable provider failure.
func Provider(name, message string, ctx map[string]any) *Error {
	e := New(CodeProvider, "provider", message, ctx)
	e.Retryable = true
	return e.WithContext("provider", name)
}

// RateLimited builds a rate-limit rejection; retryable when retries remain.
func RateLimited(name, message string, retryable bool) *Error {
	e := New(CodeRateLimit, "provider", message, nil)
	e.Retryable = retryable
	return e.WithContext("provider", name)
}

// Authentication builds a non-retryable credential failure.
func Authentication(name, message string) *Error {
	return New(CodeAuthentication, "provider", message, nil).
		WithContext("provider", name)
}

// NoProviderAvailable is raised when routing exhausts all candidates.
func NoProviderAvailable(message string, ctx map[string]any) *Error {
	return New(CodeNoProviderAvailable, "router", message, ctx)
}

// DataQuality builds a non-retryable data-quality failure.
func DataQuality(layer, message string, ctx map[string]any) *Error {
	return New(CodeDataQuality, layer, message, ctx)
}

// Reconcile builds a reconciliation failure.
func Reconcile(message string, ctx map[string]any) *Error {
	return New(CodeReconcile, "reconcile", message, ctx)
}

// Timeout builds a retryable deadline failure.
func Timeout(layer, message string) *Error {
	e := New(CodeTimeout, layer, message, nil)
	e.Retryable = true
	return e
}

// Network builds a retryable transport failure.
func Network(layer, message string) *Error {
	e := New(CodeNetwork, layer, message, nil)
	e.Retryable = true
	return e
}
