package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReconRun is the summary row of one reconciliation run.
type ReconRun struct {
	RunID          string
	CreatedAt      time.Time
	Market         string
	StartDate      time.Time
	EndDate        time.Time
	SampledSymbols int
	TotalSamples   int
	PassCount      int
	WarnCount      int
	FailCount      int
	P95CloseBPDiff decimal.Decimal
}

// ReconDiff is one compared sample within a run. Pointer fields are nil
// when a side was missing for that date.
type ReconDiff struct {
	RunID       string
	Symbol      string
	Date        time.Time
	CloseA      *decimal.Decimal
	CloseB      *decimal.Decimal
	CloseBPDiff *decimal.Decimal
	VolumeA     *decimal.Decimal
	VolumeB     *decimal.Decimal
	VolumeRatio *decimal.Decimal
	Status      string
}

// ReconcileStore persists reconciliation runs and their diffs together.
type ReconcileStore struct {
	db *DB
}

func NewReconcileStore(db *DB) *ReconcileStore {
	return &ReconcileStore{db: db}
}

func decText(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// SaveRun writes the run summary and all of its diffs in one transaction.
func (s *ReconcileStore) SaveRun(ctx context.Context, run ReconRun, diffs []ReconDiff) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reconciliation_runs
			(run_id, created_at, market, start_date, end_date,
			 sampled_symbols, total_samples, pass_count, warn_count, fail_count,
			 p95_close_bp_diff)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedAt.UTC().Format(time.RFC3339), run.Market,
		run.StartDate.Format("2006-01-02"), run.EndDate.Format("2006-01-02"),
		run.SampledSymbols, run.TotalSamples,
		run.PassCount, run.WarnCount, run.FailCount,
		run.P95CloseBPDiff.String())
	if err != nil {
		return fmt.Errorf("insert reconciliation run %s: %w", run.RunID, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO reconciliation_diffs
			(run_id, symbol, date, close_a, close_b, close_bp_diff,
			 volume_a, volume_b, volume_ratio, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare reconciliation diff insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range diffs {
		_, err := stmt.ExecContext(ctx,
			run.RunID, d.Symbol, d.Date.Format("2006-01-02"),
			decText(d.CloseA), decText(d.CloseB), decText(d.CloseBPDiff),
			decText(d.VolumeA), decText(d.VolumeB), decText(d.VolumeRatio),
			d.Status)
		if err != nil {
			return fmt.Errorf("insert reconciliation diff %s %s: %w",
				d.Symbol, d.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// Run loads one run summary by id.
func (s *ReconcileStore) Run(ctx context.Context, runID string) (ReconRun, error) {
	type scanRow struct {
		RunID          string `db:"run_id"`
		CreatedAt      string `db:"created_at"`
		Market         string `db:"market"`
		StartDate      string `db:"start_date"`
		EndDate        string `db:"end_date"`
		SampledSymbols int    `db:"sampled_symbols"`
		TotalSamples   int    `db:"total_samples"`
		PassCount      int    `db:"pass_count"`
		WarnCount      int    `db:"warn_count"`
		FailCount      int    `db:"fail_count"`
		P95CloseBPDiff string `db:"p95_close_bp_diff"`
	}
	var r scanRow
	err := s.db.GetContext(ctx, &r, `
		SELECT run_id, created_at, market, start_date, end_date,
		       sampled_symbols, total_samples, pass_count, warn_count, fail_count,
		       p95_close_bp_diff
		FROM reconciliation_runs WHERE run_id = ?`, runID)
	if err != nil {
		return ReconRun{}, fmt.Errorf("load reconciliation run %s: %w", runID, err)
	}

	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return ReconRun{}, fmt.Errorf("reconciliation run created_at %q: %w", r.CreatedAt, err)
	}
	start, err := time.ParseInLocation("2006-01-02", r.StartDate, time.UTC)
	if err != nil {
		return ReconRun{}, fmt.Errorf("reconciliation run start_date %q: %w", r.StartDate, err)
	}
	end, err := time.ParseInLocation("2006-01-02", r.EndDate, time.UTC)
	if err != nil {
		return ReconRun{}, fmt.Errorf("reconciliation run end_date %q: %w", r.EndDate, err)
	}
	p95, err := decimal.NewFromString(r.P95CloseBPDiff)
	if err != nil {
		return ReconRun{}, fmt.Errorf("reconciliation run p95 %q: %w", r.P95CloseBPDiff, err)
	}
	return ReconRun{
		RunID: r.RunID, CreatedAt: createdAt, Market: r.Market,
		StartDate: start, EndDate: end,
		SampledSymbols: r.SampledSymbols, TotalSamples: r.TotalSamples,
		PassCount: r.PassCount, WarnCount: r.WarnCount, FailCount: r.FailCount,
		P95CloseBPDiff: p95,
	}, nil
}

// Diffs loads the diffs of one run, in insertion order.
func (s *ReconcileStore) Diffs(ctx context.Context, runID string) ([]ReconDiff, error) {
	type scanRow struct {
		RunID       string  `db:"run_id"`
		Symbol      string  `db:"symbol"`
		Date        string  `db:"date"`
		CloseA      *string `db:"close_a"`
		CloseB      *string `db:"close_b"`
		CloseBPDiff *string `db:"close_bp_diff"`
		VolumeA     *string `db:"volume_a"`
		VolumeB     *string `db:"volume_b"`
		VolumeRatio *string `db:"volume_ratio"`
		Status      string  `db:"status"`
	}
	var raw []scanRow
	err := s.db.SelectContext(ctx, &raw, `
		SELECT run_id, symbol, date, close_a, close_b, close_bp_diff,
		       volume_a, volume_b, volume_ratio, status
		FROM reconciliation_diffs WHERE run_id = ? ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("load reconciliation diffs %s: %w", runID, err)
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

	diffs := make([]ReconDiff, 0, len(raw))
	for _, r := range raw {
		date, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("reconciliation diff date %q: %w", r.Date, err)
		}
		d := ReconDiff{RunID: r.RunID, Symbol: r.Symbol, Date: date, Status: r.Status}
		if d.CloseA, err = parseDec(r.CloseA); err != nil {
			return nil, fmt.Errorf("reconciliation diff close_a: %w", err)
		}
		if d.CloseB, err = parseDec(r.CloseB); err != nil {
			return nil, fmt.Errorf("reconciliation diff close_b: %w", err)
		}
		if d.CloseBPDiff, err = parseDec(r.CloseBPDiff); err != nil {
			return nil, fmt.Errorf("reconciliation diff close_bp_diff: %w", err)
		}
		if d.VolumeA, err = parseDec(r.VolumeA); err != nil {
			return nil, fmt.Errorf("reconciliation diff volume_a: %w", err)
		}
		if d.VolumeB, err = parseDec(r.VolumeB); err != nil {
			return nil, fmt.Errorf("reconciliation diff volume_b: %w", err)
		}
		if d.VolumeRatio, err = parseDec(r.VolumeRatio); err != nil {
			return nil, fmt.Errorf("reconciliation diff volume_ratio: %w", err)
		}
		diffs = append(diffs, d)
	}
	return diffs, nil
}
