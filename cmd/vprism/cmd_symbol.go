package main

import (
	"github.com/spf13/cobra"

	"github.com/vprism/vprism/internal/models"
	"github.com/vprism/vprism/internal/output"
)

func newSymbolCmd(flags *globalFlags) *cobra.Command {
	symbolCmd := &cobra.Command{
		Use:   "symbol",
		Short: "Symbol normalization operations",
	}

	var (
		market string
		asset  string
	)

	resolveCmd := &cobra.Command{
		Use:   "resolve <symbol>",
		Short: "Resolve a raw symbol to its canonical form",
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

			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.close()

			resolved, err := app.svc.Symbols().Normalize(cmd.Context(), args[0], m, a)
			if err != nil {
				return err
			}
			return renderRows(flags, output.ResolveTable([]models.ResolvedSymbol{resolved}))
		},
	}

	resolveCmd.Flags().StringVar(&market, "market", "cn", "Market tag")
	resolveCmd.Flags().StringVar(&asset, "asset", "stock", "Asset kind")

	symbolCmd.AddCommand(resolveCmd)
	return symbolCmd
}
