package output

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vprism/vprism/internal/adjust"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/quality/drift"
	"github.com/vprism/vprism/internal/quality/reconcile"
)

func decCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// PointsTable renders fetched data points.
func PointsTable(points []models.DataPoint) Table {
	tbl := Table{Columns: []string{
		"symbol", "timestamp", "open", "high", "low", "close", "volume", "provider",
	}}
	for _, p := range points {
		tbl.Rows = append(tbl.Rows, []string{
			p.Symbol,
			p.Timestamp.UTC().Format(time.RFC3339),
			decCell(p.Open), decCell(p.High), decCell(p.Low), decCell(p.Close),
			decCell(p.Volume),
			p.Provider,
		})
	}
	return tbl
}

// ResolveTable renders symbol resolutions.
func ResolveTable(resolved []models.ResolvedSymbol) Table {
	tbl := Table{Columns: []string{"raw", "canonical", "market", "asset", "rule_id", "provider_hint"}}
	for _, r := range resolved {
		tbl.Rows = append(tbl.Rows, []string{
			r.Raw, r.Canonical, string(r.Market), string(r.Asset), r.RuleID, r.ProviderHint,
		})
	}
	return tbl
}

// AdjustTable renders one factor build, one row per bar.
func AdjustTable(res adjust.Result) Table {
	tbl := Table{Columns: []string{
		"date", "close_raw", "close_qfq", "close_hfq",
		"factor_qfq", "factor_hfq", "version",
	}}
	for _, r := range res.Rows {
		tbl.Rows = append(tbl.Rows, []string{
			r.Date.Format("2006-01-02"),
			decCell(r.CloseRaw), decCell(r.CloseQFQ), decCell(r.CloseHFQ),
			r.FactorQFQ.String(), r.FactorHFQ.String(),
			res.Version,
		})
	}
	return tbl
}

// DriftTable renders one drift run, one row per metric.
func DriftTable(res drift.Result) Table {
	tbl := Table{Columns: []string{
		"symbol", "market", "window", "metric", "value", "status", "run_id",
	}}
	for _, m := range res.Metrics {
		tbl.Rows = append(tbl.Rows, []string{
			res.Symbol, res.Market, strconv.Itoa(res.Window),
			m.Name, m.Value.String(), m.Status, res.RunID,
		})
	}
	return tbl
}

// ReconcileTable renders one reconciliation run, one row per sample.
func ReconcileTable(res reconcile.Result) Table {
	tbl := Table{Columns: []string{
		"symbol", "date", "close_a", "close_b", "close_bp_diff",
		"volume_a", "volume_b", "volume_ratio", "status",
	}}
	for _, s := range res.Samples {
		tbl.Rows = append(tbl.Rows, []string{
			s.Symbol, s.Date.Format("2006-01-02"),
			decCell(s.CloseA), decCell(s.CloseB), decCell(s.CloseBPDiff),
			decCell(s.VolumeA), decCell(s.VolumeB), decCell(s.VolumeRatio),
			s.Status,
		})
	}
	return tbl
}
