package pipeline

import (
	"math/rand"

	"github.com/marketvet/marketvet/internal/market"
)

const minScenarioSamples = 30

// ScenarioResult summarizes a Monte Carlo projection of cumulative return
// over the configured horizon.
type ScenarioResult struct {
	Paths          int     `json:"paths"`
	Horizon        int     `json:"horizon"`
	ExpectedReturn float64 `json:"expected_return"`
	P5             float64 `json:"p5"`
	P50            float64 `json:"p50"`
	P95            float64 `json:"p95"`
	ProbProfit     float64 `json:"prob_profit"`
}

// simulateScenarios resamples historical returns with replacement and
// compounds them over the horizon, once per path. A fixed seed makes runs
// reproducible.
func simulateScenarios(returns []float64, paths, horizon int, seed int64) (*ScenarioResult, error) {
	if len(returns) < minScenarioSamples {
		return nil, market.ErrInsufficientHistory
	}
	if paths <= 0 {
		paths = 500
	}
	if horizon <= 0 {
		horizon = 24
	}

	rng := rand.New(rand.NewSource(seed))
	finals := make([]float64, paths)
	profitable := 0
	for p := 0; p < paths; p++ {
		cum := 1.0
		for h := 0; h < horizon; h++ {
			cum *= 1 + returns[rng.Intn(len(returns))]
		}
		finals[p] = cum - 1
		if finals[p] > 0 {
			profitable++
		}
	}

	return &ScenarioResult{
		Paths:          paths,
		Horizon:        horizon,
		ExpectedReturn: market.Mean(finals),
		P5:             market.Percentile(finals, 0.05),
		P50:            market.Percentile(finals, 0.50),
		P95:            market.Percentile(finals, 0.95),
		ProbProfit:     float64(profitable) / float64(paths),
	}, nil
}
