package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/output"
	"github.com/vprism/vprism/internal/quality/reconcile"
	"github.com/vprism/vprism/internal/service"
	"github.com/vprism/vprism/internal/store"
)

// pinnedSeriesLoader loads one provider's series through the façade so
// reconciliation exercises the same path real reads do.
type pinnedSeriesLoader struct {
	svc      *service.Service
	provider string
}

func (l pinnedSeriesLoader) Series(ctx context.Context, market, symbol string, start, end time.Time) ([]models.DataPoint, error) {
	q := models.DataQuery{
		Asset:     models.AssetStock,
		Market:    models.MarketType(market),
		Provider:  l.provider,
		Timeframe: models.Timeframe1d,
		Start:     &start,
		End:       &end,
		Symbols:   []string{symbol},
		Canonical: []string{symbol},
	}
	resp, err := l.svc.GetData(ctx, q)
	if err != nil {
		return nil, err
	}
	return resp.Points, nil
}

func newReconcileCmd(flags *globalFlags) *cobra.Command {
	var (
		market     string
		start      string
		end        string
		sampleSize int
		limit      int
		providerA  string
		providerB  string
	)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Cross-provider data reconciliation",
	}

	runCmd := &cobra.Command{
		Use:   "run <symbol> [symbol...]",
		Short: "Compare two providers over sampled symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := models.ParseMarketType(market); err != nil {
				return validationErr(err, "market", market)
			}
			startDate, err := parseCLIDate(start, "start")
			if err != nil {
				return err
			}
			endDate, err := parseCLIDate(end, "end")
			if err != nil {
				return err
			}

			symbols := dedupeSymbols(args)
			if limit > 0 && len(symbols) > limit {
				symbols = symbols[:limit]
			}

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.close()

			sampler := reconcile.NewSampler(
				pinnedSeriesLoader{svc: app.svc, provider: providerA},
				pinnedSeriesLoader{svc: app.svc, provider: providerB},
				reconcile.DefaultConfig(),
				reconcile.WithWriter(store.NewReconcileStore(app.db)),
			)
			res, err := sampler.Run(cmd.Context(), reconcile.Request{
				Symbols:    symbols,
				Market:     market,
				Start:      startDate,
				End:        endDate,
				SampleSize: sampleSize,
			})
			if err != nil {
				return err
			}
			if err := renderRows(flags, output.ReconcileTable(res)); err != nil {
				return err
			}
			if res.FailCount > 0 {
				return errs.Reconcile("reconciliation found failing samples", map[string]any{
					"run_id":     res.RunID,
					"fail_count": res.FailCount,
					"p95_bp":     res.P95CloseBPDiff.String(),
				})
			}
			return nil
		},
	}

	runCmd.Flags().StringVar(&market, "market", "cn", "Market tag")
	runCmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&end, "end", "", "End date (YYYY-MM-DD)")
	runCmd.Flags().IntVar(&sampleSize, "sample-size", reconcile.DefaultSampleSize, "Symbols sampled per run")
	runCmd.Flags().IntVar(&limit, "limit", 0, "Cap on input symbols before sampling")
	runCmd.Flags().StringVar(&providerA, "provider-a", "vprism_native", "First provider")
	runCmd.Flags().StringVar(&providerB, "provider-b", "vprism_native", "Second provider")

	reconcileCmd.AddCommand(runCmd)
	return reconcileCmd
}

func parseCLIDate(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errs.Validation("cli", field+" date is required",
			map[string]any{field: s})
	}
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, errs.Validation("cli", "date must be YYYY-MM-DD",
			map[string]any{field: s})
	}
	return d, nil
}
