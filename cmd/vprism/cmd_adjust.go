package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vprism/vprism/internal/adjust"
	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/output"
	"github.com/vprism/vprism/internal/store"
)

// pointsPriceSource feeds the adjustment engine from the embedded store.
type pointsPriceSource struct {
	points *store.PointsStore
}

func (l pointsPriceSource) Prices(ctx context.Context, market models.MarketType, symbol string, start, end time.Time) ([]models.DataPoint, error) {
	return l.points.Query(ctx, models.DataQuery{
		Market:    market,
		Timeframe: models.Timeframe1d,
		Start:     &start,
		End:       &end,
		Symbols:   []string{symbol},
		Canonical: []string{symbol},
	})
}

func newAdjustCmd(flags *globalFlags) *cobra.Command {
	var (
		market      string
		asset       string
		start       string
		end         string
		mode        string
		actionsPath string
	)

	adjustCmd := &cobra.Command{
		Use:   "adjust",
		Short: "Corporate-action adjustment factors",
	}

	buildCmd := &cobra.Command{
		Use:   "build <symbol>",
		Short: "Build and store adjustment factors for one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := models.ParseMarketType(market)
			if err != nil {
				return validationErr(err, "market", market)
			}
			a, err := models.ParseAssetType(asset)
			if err != nil {
				return validationErr(err, "asset", asset)
			}
			adjustMode, err := models.ParseAdjustMode(mode)
			if err != nil {
				return validationErr(err, "mode", mode)
			}
			startDate, err := parseCLIDate(start, "start")
			if err != nil {
				return err
			}
			endDate, err := parseCLIDate(end, "end")
			if err != nil {
				return err
			}
			actions, err := loadActionsFile(actionsPath)
			if err != nil {
				return err
			}

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.close()

			resolved, err := app.svc.Symbols().Normalize(cmd.Context(), args[0], m, a)
			if err != nil {
				return err
			}

			engine := adjust.NewEngine(
				adjust.WithSources(
					pointsPriceSource{points: app.points},
					fileActionSource{set: actions},
				),
				adjust.WithWriter(adjust.NewWriter(store.NewAdjustmentStore(app.db))),
			)
			res, err := engine.Run(cmd.Context(), adjust.Request{
				Symbol: resolved.Canonical,
				Market: m,
				Start:  startDate,
				End:    endDate,
				Mode:   adjustMode,
			})
			if err != nil {
				return err
			}
			if res.ActionGap {
				log.Warn().Str("symbol", resolved.Canonical).
					Msg("some events had no usable bar and were skipped")
			}
			log.Info().
				Str("symbol", resolved.Canonical).
				Str("version", res.Version).
				Int("rows", len(res.Rows)).
				Msg("adjustment factors built")
			return renderRows(flags, output.AdjustTable(res))
		},
	}

	buildCmd.Flags().StringVar(&market, "market", "cn", "Market tag")
	buildCmd.Flags().StringVar(&asset, "asset", "stock", "Asset kind")
	buildCmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	buildCmd.Flags().StringVar(&end, "end", "", "End date (YYYY-MM-DD)")
	buildCmd.Flags().StringVar(&mode, "mode", "forward", "Adjustment mode (none|forward|backward)")
	buildCmd.Flags().StringVar(&actionsPath, "actions", "", "Corporate-action file (YAML or JSON)")

	adjustCmd.AddCommand(buildCmd)
	return adjustCmd
}
