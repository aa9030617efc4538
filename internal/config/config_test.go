package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("", "vprism.db")
	require.NoError(t, err)

	assert.Equal(t, "vprism.db", cfg.Store.Path)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Equal(t, 3, cfg.Router.MaxFallbackAttempts)
	assert.Equal(t, 1, cfg.Router.Priorities["vprism_native"])
	assert.Empty(t, cfg.Cache.Redis.Addr)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vprism.yaml")
	content := `
store:
  path: /tmp/custom.db
  max_open_conns: 8
cache:
  max_entries: 512
  redis:
    addr: localhost:6379
    key_prefix: vp
router:
  max_fallback_attempts: 5
providers:
  alpha_vantage:
    priority: 2
    auth:
      type: api_key
      api_key: test-key
listen: 0.0.0.0:9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, "vprism.db")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Store.Path)
	assert.Equal(t, 8, cfg.Store.MaxOpenConns)
	assert.Equal(t, 512, cfg.Cache.MaxEntries)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "vp", cfg.Cache.Redis.KeyPrefix)
	assert.Equal(t, 5, cfg.Router.MaxFallbackAttempts)
	// Unset sections keep their defaults.
	assert.Equal(t, uint32(5), cfg.Router.Breaker.FailureThreshold)
	assert.Equal(t, "test-key", cfg.Providers["alpha_vantage"].Auth.APIKey)
	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "vprism.db")
	assert.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [not a map"), 0o644))

	_, err := Load(path, "vprism.db")
	assert.Error(t, err)
}
