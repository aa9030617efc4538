package adjust

import (
	"github.com/shopspring/decimal"

	"github.com/vprism/vprism/internal/models"
)

// Apply scales a price series by the factors of one build. Forward mode
// uses QFQ (latest bar unchanged), backward mode uses HFQ (earliest bar
// unchanged). Volume and amount pass through untouched; points without a
// matching factor date pass through as-is.
func Apply(points []models.DataPoint, factors []Factor, mode models.AdjustMode) []models.DataPoint {
	if mode == "" || mode == models.AdjustNone || len(factors) == 0 {
		return points
	}
	byDay := make(map[string]Factor, len(factors))
	for _, f := range factors {
		byDay[dayKey(f.Date)] = f
	}

	out := make([]models.DataPoint, len(points))
	for i, p := range points {
		f, ok := byDay[dayKey(p.Timestamp)]
		if !ok {
			out[i] = p
			continue
		}
		mult := f.QFQ
		if mode == models.AdjustBackward {
			mult = f.HFQ
		}
		adj := p
		adj.Open = scale(p.Open, mult)
		adj.High = scale(p.High, mult)
		adj.Low = scale(p.Low, mult)
		adj.Close = scale(p.Close, mult)
		out[i] = adj
	}
	return out
}

func scale(v *decimal.Decimal, mult decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	scaled := v.Mul(mult)
	return &scaled
}
