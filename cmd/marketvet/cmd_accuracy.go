package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var accuracyJSON bool

var accuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "Show the learned per-indicator reliability table",
	RunE:  runAccuracy,
}

func init() {
	rootCmd.AddCommand(accuracyCmd)
	accuracyCmd.Flags().BoolVar(&accuracyJSON, "json", false, "Output as JSON")
}

func runAccuracy(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sum := a.tracker.Stats()
	if accuracyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Printf("Outcomes recorded: %d   recent hit rate: %.0f%%\n\n",
		sum.OutcomeCount, sum.RecentHitRate*100)
	if len(sum.Indicators) == 0 {
		fmt.Println("No indicator records yet; static priors are in effect.")
		return nil
	}
	fmt.Printf("  %-16s %-10s %8s %8s %9s\n", "INDICATOR", "SYMBOL", "SIGNALS", "CORRECT", "ACCURACY")
	for _, rec := range sum.Indicators {
		symbol := rec.Symbol
		if symbol == "" {
			symbol = "(global)"
		}
		fmt.Printf("  %-16s %-10s %8d %8d %8.1f%%\n",
			rec.IndicatorID, symbol, rec.TotalSignals, rec.CorrectSignals, rec.Accuracy*100)
	}
	if unreliable := a.tracker.DetectUnreliable(a.cfg.Pipeline.UnreliableBelow); len(unreliable) > 0 {
		fmt.Printf("\nUnreliable (below %.0f%%): %v\n", a.cfg.Pipeline.UnreliableBelow*100, unreliable)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
