package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketvet/marketvet/internal/pipeline"
)

var (
	analyzeSymbol     string
	analyzeTimeframes string
	analyzeEquity     float64
	analyzeTimeout    time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one analysis pass and print the recommendation",
	Long: `Runs the full staged pipeline for one symbol: multi-source data collection
with cross-validation, regime classification, indicator features, signal
synthesis, scenario simulation, risk metrics, validation, and sizing.

Examples:
  marketvet analyze --symbol BTC-USD --equity 10000
  marketvet analyze --symbol ETH-USD --timeframes 1h,4h --timeout 30s`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeSymbol, "symbol", "", "Symbol to analyze (required)")
	analyzeCmd.Flags().StringVar(&analyzeTimeframes, "timeframes", "", "Comma-separated timeframes (config default when empty)")
	analyzeCmd.Flags().Float64Var(&analyzeEquity, "equity", 0, "Account equity for position sizing")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", time.Minute, "Overall analysis deadline")
	analyzeCmd.MarkFlagRequired("symbol")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), analyzeTimeout)
	defer cancel()

	req := pipeline.Request{Symbol: analyzeSymbol, Equity: analyzeEquity}
	if analyzeTimeframes != "" {
		req.Timeframes = strings.Split(analyzeTimeframes, ",")
	}

	rec, err := a.orchestrator.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
