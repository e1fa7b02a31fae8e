package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketvet/marketvet/internal/accuracy"
)

var (
	outcomeSymbol     string
	outcomePredicted  string
	outcomeActual     string
	outcomeSuccess    bool
	outcomePnL        float64
	outcomeIndicators []string
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Record a realized trade outcome for accuracy learning",
	Long: `Feeds one realized trade back into the accuracy tracker. Every directional
indicator signal attached via --indicator is scored against the realized
direction and the per-indicator reliability table is updated and persisted.

Example:
  marketvet outcome --symbol BTC-USD --predicted LONG --success \
    --pnl 2.4 --indicator rsi=BUY --indicator ema_cross=BUY`,
	RunE: runOutcome,
}

func init() {
	rootCmd.AddCommand(outcomeCmd)
	outcomeCmd.Flags().StringVar(&outcomeSymbol, "symbol", "", "Traded symbol (required)")
	outcomeCmd.Flags().StringVar(&outcomePredicted, "predicted", "", "Predicted action, LONG or SHORT (required)")
	outcomeCmd.Flags().StringVar(&outcomeActual, "actual", "", "Action actually taken (defaults to predicted)")
	outcomeCmd.Flags().BoolVar(&outcomeSuccess, "success", false, "Whether the trade was profitable")
	outcomeCmd.Flags().Float64Var(&outcomePnL, "pnl", 0, "Profit/loss percentage")
	outcomeCmd.Flags().StringArrayVar(&outcomeIndicators, "indicator", nil, "indicator=signal pair, repeatable")
	outcomeCmd.MarkFlagRequired("symbol")
	outcomeCmd.MarkFlagRequired("predicted")
}

func runOutcome(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	used := make(map[string]string, len(outcomeIndicators))
	for _, pair := range outcomeIndicators {
		name, signal, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("bad --indicator value %q, want indicator=signal", pair)
		}
		used[name] = signal
	}
	actual := outcomeActual
	if actual == "" {
		actual = outcomePredicted
	}

	if err := a.tracker.RecordOutcome(accuracy.Outcome{
		Timestamp:       time.Now(),
		Symbol:          outcomeSymbol,
		PredictedAction: outcomePredicted,
		ActualAction:    actual,
		Success:         outcomeSuccess,
		PnLPct:          outcomePnL,
		IndicatorsUsed:  used,
	}); err != nil {
		return err
	}
	fmt.Printf("Outcome recorded; %d indicator signals scored.\n", len(used))
	return nil
}
