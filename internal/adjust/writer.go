package adjust

import (
	"context"
	"fmt"

	"github.com/vprism/vprism/internal/store"
)

// Writer persists factor builds into the embedded store.
type Writer struct {
	adjustments *store.AdjustmentStore
}

func NewWriter(adjustments *store.AdjustmentStore) *Writer {
	return &Writer{adjustments: adjustments}
}

// Persist upserts every factor row of one build. Rebuilds for the same
// dates replace prior rows.
func (w *Writer) Persist(ctx context.Context, res Result) error {
	if len(res.Factors) == 0 {
		return nil
	}
	rows := make([]store.AdjustmentRow, len(res.Factors))
	for i, f := range res.Factors {
		rows[i] = store.AdjustmentRow{
			Market:           string(res.Market),
			SupplierSymbol:   res.Symbol,
			Date:             f.Date,
			QFQ:              f.QFQ,
			HFQ:              f.HFQ,
			Version:          res.Version,
			BuildTime:        res.BuildTime,
			SourceEventsHash: res.SourceEventsHash,
		}
	}
	if err := w.adjustments.Upsert(ctx, rows); err != nil {
		return fmt.Errorf("persist adjustment factors %s: %w", res.Symbol, err)
	}
	return nil
}
