package pipeline

import (
	"fmt"
	"time"

	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/market"
)

// validateRecommendation is the stage-6 hard gate. Any returned error rejects
// the run and becomes the recommendation's reason. The risk-reward check only
// applies when both scenario and risk metrics were produced; the caller notes
// the skip otherwise.
func validateRecommendation(rec *Recommendation, cfg Config, dataAge time.Duration, system health.Status) error {
	if system == health.StatusFailed {
		return fmt.Errorf("%w: system health is FAILED", ErrValidationFailed)
	}
	if rec.Signal == nil || rec.Signal.Direction == market.DirNeutral {
		return fmt.Errorf("%w: no directional consensus", ErrValidationFailed)
	}
	if rec.Signal.Confidence < cfg.MinConfidence {
		return fmt.Errorf("%w: confidence %d below minimum %d",
			ErrValidationFailed, rec.Signal.Confidence, cfg.MinConfidence)
	}
	if cfg.MaxDataAge > 0 && dataAge > cfg.MaxDataAge {
		return fmt.Errorf("%w: market data is %s old, limit %s",
			ErrValidationFailed, dataAge.Round(time.Second), cfg.MaxDataAge)
	}
	if rec.Scenario != nil && rec.Risk != nil && rec.Risk.VaR95 > 0 {
		rr := riskReward(rec.Signal.Direction, rec.Scenario, rec.Risk)
		if rr < cfg.MinRiskReward {
			return fmt.Errorf("%w: risk-reward %.2f below minimum %.2f",
				ErrValidationFailed, rr, cfg.MinRiskReward)
		}
	}
	return nil
}

// riskReward compares the favorable simulated tail against one-period VaR.
// Long trades look at the upper tail, short trades at the lower.
func riskReward(dir market.Direction, sc *ScenarioResult, risk *RiskMetrics) float64 {
	reward := sc.P95
	if dir == market.DirShort {
		reward = -sc.P5
	}
	if reward < 0 {
		reward = 0
	}
	return reward / risk.VaR95
}
