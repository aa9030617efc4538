package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DriftRow is one metric observation from a drift run. Rows are
// append-only; every run writes fresh rows under its own run_id.
type DriftRow struct {
	Date      time.Time
	Market    string
	Symbol    string
	Metric    string
	Value     decimal.Decimal
	Status    string
	Window    int
	RunID     string
	CreatedAt time.Time
}

// DriftStore appends and queries drift metric rows.
type DriftStore struct {
	db *DB
}

func NewDriftStore(db *DB) *DriftStore {
	return &DriftStore{db: db}
}

// Append writes all rows of one run atomically.
func (s *DriftStore) Append(ctx context.Context, rows []DriftRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drift tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO drift_metrics
			(date, market, symbol, metric, value, status, window, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare drift insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Date.Format("2006-01-02"), row.Market, row.Symbol,
			row.Metric, row.Value.String(), row.Status, row.Window,
			row.RunID, row.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert drift metric %s/%s: %w", row.Symbol, row.Metric, err)
		}
	}
	return tx.Commit()
}

// ByRun loads every row of one run, in insertion order.
func (s *DriftStore) ByRun(ctx context.Context, runID string) ([]DriftRow, error) {
	type scanRow struct {
		Date      string `db:"date"`
		Market    string `db:"market"`
		Symbol    string `db:"symbol"`
		Metric    string `db:"metric"`
		Value     string `db:"value"`
		Status    string `db:"status"`
		Window    int    `db:"window"`
		RunID     string `db:"run_id"`
		CreatedAt string `db:"created_at"`
	}
	var raw []scanRow
	err := s.db.SelectContext(ctx, &raw, `
		SELECT date, market, symbol, metric, value, status, window, run_id, created_at
		FROM drift_metrics WHERE run_id = ? ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("load drift run %s: %w", runID, err)
	}

	rows := make([]DriftRow, 0, len(raw))
	for _, r := range raw {
		date, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("drift row date %q: %w", r.Date, err)
		}
		createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("drift row created_at %q: %w", r.CreatedAt, err)
		}
		value, err := decimal.NewFromString(r.Value)
		if err != nil {
			return nil, fmt.Errorf("drift row value %q: %w", r.Value, err)
		}
		rows = append(rows, DriftRow{
			Date: date, Market: r.Market, Symbol: r.Symbol,
			Metric: r.Metric, Value: value, Status: r.Status,
			Window: r.Window, RunID: r.RunID, CreatedAt: createdAt,
		})
	}
	return rows, nil
}
