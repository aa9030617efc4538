package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextCopiedOnConstruction(t *testing.T) {
	ctx := map[string]any{"symbol": "SH600000"}
	err := New(CodeValidation, "symbols", "bad symbol", ctx)

	ctx["symbol"] = "mutated"
	assert.Equal(t, "SH600000", err.Context["symbol"])
}

func TestErrorStringCarriesCodeAndLayer(t *testing.T) {
	err := New(CodeDataQuality, "adjustment", "no prices to adjust", nil)
	assert.Equal(t, "DATA_QUALITY [adjustment]: no prices to adjust", err.Error())

	bare := New(CodeSystem, "", "boom", nil)
	assert.Equal(t, "SYSTEM: boom", bare.Error())
}

func TestCauseChain(t *testing.T) {
	root := errors.New("disk full")
	err := New(CodeSystem, "store", "write failed", nil).WithCause(root)

	assert.ErrorIs(t, err, root)

	got, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, CodeSystem, got.Code)
}

func TestCodeOfUntypedIsSystem(t *testing.T) {
	assert.Equal(t, CodeSystem, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeProvider, CodeOf(Provider("yfinance", "upstream 500", nil)))
}

func TestRetryableHelpers(t *testing.T) {
	assert.True(t, IsRetryable(Provider("p", "x", nil)))
	assert.True(t, IsRetryable(Timeout("router", "deadline")))
	assert.True(t, IsRetryable(RateLimited("p", "slow down", true)))
	assert.False(t, IsRetryable(RateLimited("p", "slow down", false)))
	assert.False(t, IsRetryable(Validation("cli", "bad flag", nil)))
	assert.False(t, IsRetryable(Authentication("p", "key rejected")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestRedactedMasksSecretBearingKeys(t *testing.T) {
	err := New(CodeProvider, "provider", "rejected", map[string]any{
		"my_api_key":    "abc",
		"Authorization": "Bearer xyz",
		"symbol":        "AAPL",
	})
	red := err.Redacted()

	assert.Equal(t, "REDACTED", red.Context["my_api_key"])
	assert.Equal(t, "REDACTED", red.Context["Authorization"])
	assert.Equal(t, "AAPL", red.Context["symbol"])
	// The original is untouched.
	assert.Equal(t, "abc", err.Context["my_api_key"])
}
