package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/output"
	"github.com/vprism/vprism/internal/service"
)

func newDataCmd(flags *globalFlags) *cobra.Command {
	dataCmd := &cobra.Command{
		Use:   "data",
		Short: "Market data operations",
	}

	var (
		symbolList  []string
		symbolsFrom string
		asset       string
		market      string
		providerPin string
		start       string
		end         string
		timeframe   string
		adjustMode  string
	)

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch OHLCV data for a set of symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols, err := gatherSymbols(symbolList, symbolsFrom)
			if err != nil {
				return err
			}

			q, err := service.BuildQuery(service.QueryParams{
				Symbols:   symbols,
				Asset:     asset,
				Market:    market,
				Provider:  providerPin,
				Timeframe: timeframe,
				Start:     start,
				End:       end,
				Adjust:    adjustMode,
			}, time.Now())
			if err != nil {
				return err
			}

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.svc.GetData(cmd.Context(), q)
			if err != nil {
				return err
			}
			return renderRows(flags, output.PointsTable(resp.Points))
		},
	}

	fetchCmd.Flags().StringSliceVar(&symbolList, "symbols", nil, "Comma-separated symbol list")
	fetchCmd.Flags().StringVar(&symbolsFrom, "symbols-from", "", "File with one symbol per line")
	fetchCmd.Flags().StringVar(&asset, "asset", "stock", "Asset kind")
	fetchCmd.Flags().StringVar(&market, "market", "", "Market tag")
	fetchCmd.Flags().StringVar(&providerPin, "provider", "", "Pin to one provider")
	fetchCmd.Flags().StringVar(&start, "start", "", "Start date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&end, "end", "", "End date (YYYY-MM-DD)")
	fetchCmd.Flags().StringVar(&timeframe, "timeframe", "1d", "Bar interval")
	fetchCmd.Flags().StringVar(&adjustMode, "adjust", "none", "Adjustment mode (none|forward|backward)")

	dataCmd.AddCommand(fetchCmd)
	return dataCmd
}

func gatherSymbols(symbolList []string, symbolsFrom string) ([]string, error) {
	symbols := append([]string(nil), symbolList...)
	if symbolsFrom != "" {
		fromFile, err := readSymbolsFile(symbolsFrom)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, fromFile...)
	}
	symbols = dedupeSymbols(symbols)
	if len(symbols) == 0 {
		return nil, errs.Validation("cli", "no symbols given: use --symbols or --symbols-from", nil)
	}
	return symbols, nil
}

func renderRows(flags *globalFlags, tbl output.Table) error {
	format, useColor, err := renderFlags(flags)
	if err != nil {
		return err
	}
	dst, closeFn, err := openOutput(flags)
	if err != nil {
		return err
	}
	defer closeFn()
	return output.Render(dst, tbl, format, useColor)
}
