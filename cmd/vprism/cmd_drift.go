package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/output"
	"github.com/vprism/vprism/internal/quality/drift"
	"github.com/vprism/vprism/internal/store"
)

// storeHistoryLoader feeds the drift detector from the embedded store.
type storeHistoryLoader struct {
	points *store.PointsStore
}

func (l storeHistoryLoader) History(ctx context.Context, market, symbol string, n int) ([]models.DataPoint, error) {
	return l.points.Latest(ctx, market, symbol, models.Timeframe1d, n)
}

func newDriftCmd(flags *globalFlags) *cobra.Command {
	var (
		market string
		window int
	)

	driftCmd := &cobra.Command{
		Use:   "drift",
		Short: "Data drift analysis",
	}

	reportCmd := &cobra.Command{
		Use:   "report <symbol>",
		Short: "Report rolling z-score drift for one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := models.ParseMarketType(market); err != nil {
				return validationErr(err, "market", market)
			}

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.close()

			detector := drift.NewDetector(
				storeHistoryLoader{points: app.points},
				drift.DefaultConfig(),
				drift.WithWriter(store.NewDriftStore(app.db)),
			)
			res, err := detector.Run(cmd.Context(), market, args[0], window)
			if err != nil {
				return err
			}
			if err := renderRows(flags, output.DriftTable(res)); err != nil {
				return err
			}
			if res.WorstStatus() == drift.StatusFail {
				return errs.DataQuality("drift", "drift check failed",
					map[string]any{"symbol": args[0], "run_id": res.RunID})
			}
			return nil
		},
	}

	reportCmd.Flags().StringVar(&market, "market", "cn", "Market tag")
	reportCmd.Flags().IntVar(&window, "window", 20, "Baseline window size")

	driftCmd.AddCommand(reportCmd)
	return driftCmd
}

func validationErr(err error, field, value string) error {
	return errs.Validation("cli", err.Error(), map[string]any{field: value})
}
