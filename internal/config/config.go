// Package config loads the application configuration file. Every field
// is optional; zero values fall back to built-in defaults so the CLI
// runs with no config file at all.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vprism/vprism/internal/registry"
	"github.com/vprism/vprism/internal/router"
	"github.com/vprism/vprism/internal/store"
)

// CacheConfig tunes the two cache tiers.
type CacheConfig struct {
	MaxEntries int         `yaml:"max_entries" json:"max_entries"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig enables the optional L2 tier when Addr is set.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// SymbolsConfig points at an external rule file; empty means the
// built-in default rules.
type SymbolsConfig struct {
	RulesFile string `yaml:"rules_file" json:"rules_file"`
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
}

// AppConfig is the root of the configuration file.
type AppConfig struct {
	Store     store.Config                 `yaml:"store" json:"store"`
	Cache     CacheConfig                  `yaml:"cache" json:"cache"`
	Router    router.Config                `yaml:"router" json:"router"`
	Symbols   SymbolsConfig                `yaml:"symbols" json:"symbols"`
	Providers map[string]registry.Settings `yaml:"providers" json:"providers"`
	Listen    string                       `yaml:"listen" json:"listen"`
}

// Default returns the configuration used when no file is given.
func Default(dbPath string) AppConfig {
	return AppConfig{
		Store:  store.DefaultConfig(dbPath),
		Cache:  CacheConfig{MaxEntries: 10000},
		Router: router.DefaultConfig(),
	}
}

// Load reads a YAML config file over the defaults.
func Load(path, dbPath string) (AppConfig, error) {
	cfg := Default(dbPath)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = dbPath
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = 10000
	}
	if cfg.Router.MaxFallbackAttempts <= 0 {
		cfg.Router.MaxFallbackAttempts = router.DefaultConfig().MaxFallbackAttempts
	}
	if len(cfg.Router.Priorities) == 0 {
		cfg.Router.Priorities = router.DefaultConfig().Priorities
	}
	if cfg.Router.Breaker.FailureThreshold <= 0 {
		cfg.Router.Breaker = router.DefaultBreakerConfig()
	}
	return cfg, nil
}
