package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/output"
)

const (
	appName = "vprism"
	version = "v0.3.0"
)

// Exit codes of the CLI contract.
const (
	exitOK          = 0
	exitSystem      = 1
	exitValidation  = 10
	exitProvider    = 20
	exitDataQuality = 30
	exitReconcile   = 40
)

type globalFlags struct {
	format     string
	output     string
	logLevel   string
	noColor    bool
	dbPath     string
	configPath string
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Unified market-data access platform",
		Long:          "vprism fetches, normalizes, adjusts, and quality-checks market data across providers through one interface.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(flags)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.format, "format", "table", "Output format (table|jsonl)")
	pf.StringVar(&flags.output, "output", "", "Write rows to a file instead of stdout")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level (trace|debug|info|warn|error)")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&flags.dbPath, "db", defaultDBPath(), "Embedded store path")
	pf.StringVar(&flags.configPath, "config", os.Getenv("VPRISM_CONFIG"), "Config file (YAML)")

	rootCmd.AddCommand(
		newDataCmd(flags),
		newSymbolCmd(flags),
		newAdjustCmd(flags),
		newDriftCmd(flags),
		newReconcileCmd(flags),
		newServeCmd(flags),
	)

	if err := rootCmd.Execute(); err != nil {
		output.WriteError(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func setupLogging(flags *globalFlags) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(flags.logLevel))
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    flags.noColor || !term.IsTerminal(int(os.Stderr.Fd())),
	})
}

func defaultDBPath() string {
	if p := os.Getenv("VPRISM_DB"); p != "" {
		return p
	}
	return "vprism.db"
}

// exitCodeFor maps the error taxonomy onto the CLI exit-code contract.
func exitCodeFor(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeValidation:
		return exitValidation
	case errs.CodeDataQuality:
		return exitDataQuality
	case errs.CodeReconcile:
		return exitReconcile
	case errs.CodeProvider, errs.CodeRateLimit, errs.CodeAuthentication,
		errs.CodeNetwork, errs.CodeTimeout, errs.CodeRouting,
		errs.CodeNoProviderAvailable, errs.CodeCircuitBreakerOpen,
		errs.CodeNotFound:
		return exitProvider
	default:
		return exitSystem
	}
}

// openOutput returns the row destination and a close func.
func openOutput(flags *globalFlags) (*os.File, func(), error) {
	if flags.output == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(flags.output)
	if err != nil {
		return nil, nil, errs.Validation("cli", "cannot open output file",
			map[string]any{"path": flags.output}).WithCause(err)
	}
	return f, func() { f.Close() }, nil
}

func renderFlags(flags *globalFlags) (output.Format, bool, error) {
	format, err := output.ParseFormat(flags.format)
	if err != nil {
		return "", false, err
	}
	useColor := !flags.noColor && flags.output == "" && term.IsTerminal(int(os.Stdout.Fd()))
	return format, useColor, nil
}
