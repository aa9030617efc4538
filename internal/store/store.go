// Package store persists the platform's durable state in an embedded
// SQLite database accessed through sqlx. A factory opens configured
// connections; callers close them on scope exit.
package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // embedded driver
)

// Config tunes the embedded store.
type Config struct {
	Path            string        `yaml:"path" json:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	BusyTimeoutMS   int           `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
	Threads         int           `yaml:"threads" json:"threads"`
}

// DefaultConfig returns reasonable defaults for a local analytical store.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		BusyTimeoutMS:   5000,
		Threads:         4,
	}
}

// DB wraps the sqlx handle so writer constructors take one concrete type.
type DB struct {
	*sqlx.DB
}

// Open is the connection factory: it opens the database with the
// configured pragmas applied and the pool tuned.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	dsn := fmt.Sprintf("file:%s?%s", cfg.Path, pragmas(cfg))
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Path, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &DB{DB: db}, nil
}

func pragmas(cfg Config) string {
	v := url.Values{}
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "foreign_keys(1)")
	if cfg.BusyTimeoutMS > 0 {
		v.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeoutMS))
	}
	if cfg.Threads > 0 {
		v.Add("_pragma", fmt.Sprintf("threads(%d)", cfg.Threads))
	}
	return v.Encode()
}

// Ping verifies the connection within a short deadline.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
