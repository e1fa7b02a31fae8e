package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	appName = "marketvet"
	version = "v0.3.0"
)

var (
	cfgPath  string
	logJSON  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:     appName,
	Short:   "Reliability-adaptive trading decision pipeline",
	Version: version,
	Long: `marketvet cross-validates market data across sources, learns per-indicator
reliability from realized trades, and runs a staged, health-gated analysis
pipeline that turns candles into sized trade recommendations.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config (built-in defaults when empty)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override configured log level (debug|info|warn|error)")
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	if !logJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func applyLogLevel(level string) {
	if logLevel != "" {
		level = logLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
