package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	appName = "perpscan"
	version = "v1.4.0"
)

var (
	flagConfig string
	flagPretty bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cross-venue perpetual funding-rate tracker",
		Version: version,
		Long: `perpscan tracks funding rates, prices and open interest across 13
derivatives venues, rolls 15-second snapshots up into minute and hour
aggregates, and precomputes funding moving averages and pairwise
arbitrage spreads on a unified cross-venue table.`,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "Human-readable console logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the full tracker: collectors, scheduler and HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().Bool("no-collectors", false, "Serve queries only, do not start collectors")

	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the collector fleet only, without the API or scheduler",
		RunE:  runCollect,
	}

	rollupCmd := &cobra.Command{
		Use:   "rollup",
		Short: "Run one rollup pass and exit",
		RunE:  runRollup,
	}
	rollupCmd.Flags().Bool("hours", false, "Also compact minute rows into hour rows")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one unified-table sync pass and exit",
		RunE:  runSync,
	}
	syncCmd.Flags().String("source", "live", "Row source tag (live or import)")
	syncCmd.Flags().Duration("lookback", 0, "Initial look-back for venues never synced")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print per-venue collector status",
		RunE:  runStatus,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the table schema and exit",
		RunE:  runMigrate,
	}

	rootCmd.AddCommand(serveCmd, collectCmd, rollupCmd, syncCmd, statusCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	var log zerolog.Logger
	if pretty || flagPretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger()
}
