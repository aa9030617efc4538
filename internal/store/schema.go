package store

import "context"

// Table DDL. Decimals are stored as normalized strings so values
// round-trip losslessly; all timestamps are UTC.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS daily_prices (
		symbol     TEXT NOT NULL,
		market     TEXT NOT NULL,
		timeframe  TEXT NOT NULL,
		ts         TEXT NOT NULL,
		open       TEXT,
		high       TEXT,
		low        TEXT,
		close      TEXT,
		volume     TEXT,
		amount     TEXT,
		provider   TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (symbol, market, timeframe, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS adjustments (
		market             TEXT NOT NULL,
		supplier_symbol    TEXT NOT NULL,
		date               TEXT NOT NULL,
		adj_factor_qfq     TEXT NOT NULL,
		adj_factor_hfq     TEXT NOT NULL,
		version            TEXT NOT NULL,
		build_time         TEXT NOT NULL,
		source_events_hash TEXT NOT NULL,
		PRIMARY KEY (market, supplier_symbol, date)
	)`,
	`CREATE TABLE IF NOT EXISTS drift_metrics (
		date       TEXT NOT NULL,
		market     TEXT NOT NULL,
		symbol     TEXT NOT NULL,
		metric     TEXT NOT NULL,
		value      TEXT NOT NULL,
		status     TEXT NOT NULL,
		window     INTEGER NOT NULL,
		run_id     TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reconciliation_runs (
		run_id            TEXT NOT NULL PRIMARY KEY,
		created_at        TEXT NOT NULL,
		market            TEXT NOT NULL,
		start_date        TEXT NOT NULL,
		end_date          TEXT NOT NULL,
		sampled_symbols   INTEGER NOT NULL,
		total_samples     INTEGER NOT NULL,
		pass_count        INTEGER NOT NULL,
		warn_count        INTEGER NOT NULL,
		fail_count        INTEGER NOT NULL,
		p95_close_bp_diff TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reconciliation_diffs (
		run_id        TEXT NOT NULL,
		symbol        TEXT NOT NULL,
		date          TEXT NOT NULL,
		close_a       TEXT,
		close_b       TEXT,
		close_bp_diff TEXT,
		volume_a      TEXT,
		volume_b      TEXT,
		volume_ratio  TEXT,
		status        TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS symbol_map (
		canonical     TEXT NOT NULL,
		raw_symbol    TEXT NOT NULL,
		market        TEXT NOT NULL,
		asset_type    TEXT NOT NULL,
		provider_hint TEXT,
		rule_id       TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		PRIMARY KEY (raw_symbol, market, asset_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_drift_metrics_run ON drift_metrics (run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_recon_diffs_run ON reconciliation_diffs (run_id)`,
}

// EnsureSchema bootstraps every table; each statement is idempotent.
func EnsureSchema(ctx context.Context, db *DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
