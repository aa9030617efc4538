package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vprism/vprism/internal/models"
)

// PointsStore is the local price repository. Fetched points are written
// through after every provider call so historical queries can be served
// when every provider is unavailable.
type PointsStore struct {
	db    *DB
	clock func() time.Time
}

func NewPointsStore(db *DB) *PointsStore {
	return &PointsStore{db: db, clock: time.Now}
}

// SetClock injects the timestamp source for tests.
func (s *PointsStore) SetClock(clock func() time.Time) { s.clock = clock }

const upsertPointSQL = `
	INSERT INTO daily_prices
		(symbol, market, timeframe, ts, open, high, low, close, volume, amount,
		 provider, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, market, timeframe, ts) DO UPDATE SET
		open     = excluded.open,
		high     = excluded.high,
		low      = excluded.low,
		close    = excluded.close,
		volume   = excluded.volume,
		amount   = excluded.amount,
		provider = excluded.provider`

// Upsert writes points in one transaction, replacing prior rows for the
// same bar. The timeframe comes from the originating query.
func (s *PointsStore) Upsert(ctx context.Context, tf models.Timeframe, points []models.DataPoint) error {
	if len(points) == 0 {
		return nil
	}
	if tf == "" {
		tf = models.Timeframe1d
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin points tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertPointSQL)
	if err != nil {
		return fmt.Errorf("prepare points upsert: %w", err)
	}
	defer stmt.Close()

	createdAt := s.clock().UTC().Format(time.RFC3339)
	for _, p := range points {
		_, err := stmt.ExecContext(ctx,
			p.Symbol, string(p.Market), string(tf),
			p.Timestamp.UTC().Format(time.RFC3339),
			decText(p.Open), decText(p.High), decText(p.Low), decText(p.Close),
			decText(p.Volume), decText(p.Amount),
			p.Provider, createdAt)
		if err != nil {
			return fmt.Errorf("upsert point %s@%s: %w",
				p.Symbol, p.Timestamp.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// Query serves a historical query from the repository, ascending by
// symbol then timestamp.
func (s *PointsStore) Query(ctx context.Context, q models.DataQuery) ([]models.DataPoint, error) {
	tf := q.Timeframe
	if tf == "" {
		tf = models.Timeframe1d
	}

	symbols := q.QuerySymbols()
	if len(symbols) == 0 {
		return nil, nil
	}
	args := []any{string(tf)}
	in := ""
	for i, sym := range symbols {
		if i > 0 {
			in += ","
		}
		in += "?"
		args = append(args, sym)
	}

	sqlText := `
		SELECT symbol, market, ts, open, high, low, close, volume, amount, provider
		FROM daily_prices
		WHERE timeframe = ? AND symbol IN (` + in + `)`
	if q.Market != "" {
		sqlText += " AND market = ?"
		args = append(args, string(q.Market))
	}
	if q.Start != nil {
		sqlText += " AND ts >= ?"
		args = append(args, q.Start.UTC().Format(time.RFC3339))
	}
	if q.End != nil {
		sqlText += " AND ts <= ?"
		args = append(args, q.End.UTC().Format(time.RFC3339))
	}
	sqlText += " ORDER BY symbol ASC, ts ASC"

	type scanRow struct {
		Symbol   string  `db:"symbol"`
		Market   string  `db:"market"`
		TS       string  `db:"ts"`
		Open     *string `db:"open"`
		High     *string `db:"high"`
		Low      *string `db:"low"`
		Close    *string `db:"close"`
		Volume   *string `db:"volume"`
		Amount   *string `db:"amount"`
		Provider string  `db:"provider"`
	}
	var raw []scanRow
	if err := s.db.SelectContext(ctx, &raw, sqlText, args...); err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	parseDec := func(s *string) (*decimal.Decimal, error) {
		if s == nil {
			return nil, nil
		}
		d, err := decimal.NewFromString(*s)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}

	points := make([]models.DataPoint, 0, len(raw))
	for _, r := range raw {
		ts, err := time.Parse(time.RFC3339, r.TS)
		if err != nil {
			return nil, fmt.Errorf("point row ts %q: %w", r.TS, err)
		}
		p := models.DataPoint{
			Symbol:    r.Symbol,
			Market:    models.MarketType(r.Market),
			Timestamp: ts,
			Provider:  r.Provider,
		}
		if p.Open, err = parseDec(r.Open); err != nil {
			return nil, fmt.Errorf("point row open: %w", err)
		}
		if p.High, err = parseDec(r.High); err != nil {
			return nil, fmt.Errorf("point row high: %w", err)
		}
		if p.Low, err = parseDec(r.Low); err != nil {
			return nil, fmt.Errorf("point row low: %w", err)
		}
		if p.Close, err = parseDec(r.Close); err != nil {
			return nil, fmt.Errorf("point row close: %w", err)
		}
		if p.Volume, err = parseDec(r.Volume); err != nil {
			return nil, fmt.Errorf("point row volume: %w", err)
		}
		if p.Amount, err = parseDec(r.Amount); err != nil {
			return nil, fmt.Errorf("point row amount: %w", err)
		}
		points = append(points, p)
	}
	return points, nil
}

// Latest loads the most recent n bars for one symbol, ascending by
// timestamp. Drift analysis reads its history from here.
func (s *PointsStore) Latest(ctx context.Context, market, symbol string, tf models.Timeframe, n int) ([]models.DataPoint, error) {
	if tf == "" {
		tf = models.Timeframe1d
	}
	q := models.DataQuery{
		Asset:     models.AssetStock,
		Market:    models.MarketType(market),
		Timeframe: tf,
		Symbols:   []string{symbol},
	}
	rows, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}
