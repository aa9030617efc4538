package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AdjustmentRow is one persisted factor row, keyed by
// (market, supplier_symbol, date).
type AdjustmentRow struct {
	Market           string          `db:"market"`
	SupplierSymbol   string          `db:"supplier_symbol"`
	Date             time.Time       `db:"-"`
	QFQ              decimal.Decimal `db:"-"`
	HFQ              decimal.Decimal `db:"-"`
	Version          string          `db:"version"`
	BuildTime        time.Time       `db:"-"`
	SourceEventsHash string          `db:"source_events_hash"`
}

// AdjustmentStore persists and loads adjustment factor rows.
type AdjustmentStore struct {
	db *DB
}

func NewAdjustmentStore(db *DB) *AdjustmentStore {
	return &AdjustmentStore{db: db}
}

const upsertAdjustmentSQL = `
	INSERT INTO adjustments
		(market, supplier_symbol, date, adj_factor_qfq, adj_factor_hfq,
		 version, build_time, source_events_hash)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (market, supplier_symbol, date) DO UPDATE SET
		adj_factor_qfq     = excluded.adj_factor_qfq,
		adj_factor_hfq     = excluded.adj_factor_hfq,
		version            = excluded.version,
		build_time         = excluded.build_time,
		source_events_hash = excluded.source_events_hash`

// Upsert writes all rows in one transaction; a rebuild replaces prior
// factors for the same dates.
func (s *AdjustmentStore) Upsert(ctx context.Context, rows []AdjustmentRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin adjustments tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertAdjustmentSQL)
	if err != nil {
		return fmt.Errorf("prepare adjustments upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Market, row.SupplierSymbol, row.Date.Format("2006-01-02"),
			row.QFQ.String(), row.HFQ.String(),
			row.Version, row.BuildTime.UTC().Format(time.RFC3339),
			row.SourceEventsHash)
		if err != nil {
			return fmt.Errorf("upsert adjustment %s %s: %w",
				row.SupplierSymbol, row.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// Factors loads the stored rows for one instrument, ascending by date.
func (s *AdjustmentStore) Factors(ctx context.Context, market, symbol string) ([]AdjustmentRow, error) {
	type scanRow struct {
		Market           string `db:"market"`
		SupplierSymbol   string `db:"supplier_symbol"`
		Date             string `db:"date"`
		QFQ              string `db:"adj_factor_qfq"`
		HFQ              string `db:"adj_factor_hfq"`
		Version          string `db:"version"`
		BuildTime        string `db:"build_time"`
		SourceEventsHash string `db:"source_events_hash"`
	}
	var raw []scanRow
	err := s.db.SelectContext(ctx, &raw, `
		SELECT market, supplier_symbol, date, adj_factor_qfq, adj_factor_hfq,
		       version, build_time, source_events_hash
		FROM adjustments
		WHERE market = ? AND supplier_symbol = ?
		ORDER BY date ASC`, market, symbol)
	if err != nil {
		return nil, fmt.Errorf("load adjustments %s/%s: %w", market, symbol, err)
	}

	rows := make([]AdjustmentRow, 0, len(raw))
	for _, r := range raw {
		date, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("adjustment row date %q: %w", r.Date, err)
		}
		buildTime, err := time.Parse(time.RFC3339, r.BuildTime)
		if err != nil {
			return nil, fmt.Errorf("adjustment row build_time %q: %w", r.BuildTime, err)
		}
		qfq, err := decimal.NewFromString(r.QFQ)
		if err != nil {
			return nil, fmt.Errorf("adjustment row qfq %q: %w", r.QFQ, err)
		}
		hfq, err := decimal.NewFromString(r.HFQ)
		if err != nil {
			return nil, fmt.Errorf("adjustment row hfq %q: %w", r.HFQ, err)
		}
		rows = append(rows, AdjustmentRow{
			Market:           r.Market,
			SupplierSymbol:   r.SupplierSymbol,
			Date:             date,
			QFQ:              qfq,
			HFQ:              hfq,
			Version:          r.Version,
			BuildTime:        buildTime,
			SourceEventsHash: r.SourceEventsHash,
		})
	}
	return rows, nil
}
