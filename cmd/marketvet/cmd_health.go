package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthJSON    bool
	healthSymbol  string
	healthTimeout time.Duration
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the sources and report component health",
	Long: `Runs one aggregation probe against every configured source, then prints
the rolling-window health classification per component and the degradation
plan for anything unhealthy.

Examples:
  marketvet health
  marketvet health --json`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output the report as JSON")
	healthCmd.Flags().StringVar(&healthSymbol, "symbol", "BTC-USD", "Probe symbol")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 30*time.Second, "Probe timeout")
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
	defer cancel()
	if _, err := a.aggregator.FetchAndValidate(ctx, healthSymbol, "1h", 50); err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	rep := a.monitor.Report()
	if healthJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Printf("System: %s\n\n", rep.Status)
	for _, id := range sortedKeys(rep.PerComponent) {
		ch := rep.PerComponent[id]
		fmt.Printf("  %-16s %-9s success=%.0f%% errors=%d calls=%d\n",
			id, ch.Status, ch.SuccessRate*100, ch.ErrorCount, ch.WindowCalls)
	}
	if len(rep.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, r := range rep.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
	}
	return nil
}
