package pipeline

import (
	"math"

	"github.com/marketvet/marketvet/internal/market"
)

const minRiskSamples = 30

// RiskMetrics are the stage-5 value-at-risk and performance figures.
type RiskMetrics struct {
	// VaR95 is the 95% one-period value at risk as a positive loss
	// fraction.
	VaR95            float64 `json:"var_95"`
	AnnualReturn     float64 `json:"annual_return"`
	AnnualVolatility float64 `json:"annual_volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// computeRisk derives historical risk metrics from the series returns.
func computeRisk(s market.Series, periodsPerDay float64) (*RiskMetrics, error) {
	returns := s.Returns()
	if len(returns) < minRiskSamples {
		return nil, market.ErrInsufficientHistory
	}
	if periodsPerDay <= 0 {
		periodsPerDay = 24
	}
	periodsPerYear := periodsPerDay * 365

	p5 := market.Percentile(returns, 0.05)
	var95 := 0.0
	if p5 < 0 {
		var95 = -p5
	}

	mean := market.Mean(returns)
	std := market.StdDev(returns)
	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std * math.Sqrt(periodsPerYear)
	}

	closes := s.Closes()
	peak := closes[0]
	maxDD := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			if dd := (peak - c) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}

	return &RiskMetrics{
		VaR95:            var95,
		AnnualReturn:     mean * periodsPerYear,
		AnnualVolatility: std * math.Sqrt(periodsPerYear),
		SharpeRatio:      sharpe,
		MaxDrawdown:      maxDD,
	}, nil
}
