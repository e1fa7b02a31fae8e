// Package regime classifies current market conditions into discrete regimes
// and maps each regime to tuned indicator parameters and timeframe sets.
// Everything here is pure computation over the provided series; nothing is
// persisted.
package regime

import (
	"math"

	"github.com/marketvet/marketvet/internal/market"
)

// Volatility regimes.
const (
	VolHigh   = "high"
	VolNormal = "normal"
	VolLow    = "low"
)

// Trend regimes.
const (
	TrendStrong   = "strong_trend"
	TrendModerate = "moderate"
	TrendRanging  = "ranging"
)

// Overall regimes, in override order.
const (
	OverallHighVolatility = "high_volatility"
	OverallStrongTrend    = "strong_trend"
	OverallRanging        = "ranging"
	OverallLowVolatility  = "low_volatility"
	OverallNormal         = "normal"
)

// Classification thresholds.
const (
	highVolThreshold    = 5.0
	normalVolThreshold  = 2.5
	strongTrendStrength = 0.7
	moderateStrength    = 0.4
	minClassifySamples  = 20
)

// Profile is the per-call market condition classification.
type Profile struct {
	VolatilityRegime string  `json:"volatility_regime"`
	TrendRegime      string  `json:"trend_regime"`
	Volatility       float64 `json:"volatility"`
	TrendStrength    float64 `json:"trend_strength"`
	Efficiency       float64 `json:"efficiency"`
	OverallRegime    string  `json:"overall_regime"`
}

// Classify derives the condition profile from a series. periodsPerDay scales
// the per-period return volatility to a daily figure (24 for 1h candles).
func Classify(s market.Series, periodsPerDay float64) (Profile, error) {
	if len(s) < minClassifySamples {
		return Profile{}, market.ErrInsufficientHistory
	}
	if periodsPerDay <= 0 {
		periodsPerDay = 24
	}

	returns := s.Returns()
	volatility := market.StdDev(returns) * math.Sqrt(periodsPerDay) * 100

	closes := s.Closes()
	index := make([]float64, len(closes))
	for i := range index {
		index[i] = float64(i)
	}
	trendStrength := math.Abs(market.Correlation(index, closes))

	var travel float64
	for i := 1; i < len(closes); i++ {
		travel += math.Abs(closes[i] - closes[i-1])
	}
	efficiency := 0.0
	if travel > 0 {
		efficiency = math.Abs(closes[len(closes)-1]-closes[0]) / travel
	}

	p := Profile{
		Volatility:    volatility,
		TrendStrength: trendStrength,
		Efficiency:    efficiency,
	}

	switch {
	case volatility > highVolThreshold:
		p.VolatilityRegime = VolHigh
	case volatility > normalVolThreshold:
		p.VolatilityRegime = VolNormal
	default:
		p.VolatilityRegime = VolLow
	}

	switch {
	case trendStrength > strongTrendStrength:
		p.TrendRegime = TrendStrong
	case trendStrength > moderateStrength:
		p.TrendRegime = TrendModerate
	default:
		p.TrendRegime = TrendRanging
	}

	// High volatility overrides everything; then trend extremes; then the
	// remaining volatility extremes.
	switch {
	case p.VolatilityRegime == VolHigh:
		p.OverallRegime = OverallHighVolatility
	case p.TrendRegime == TrendStrong:
		p.OverallRegime = OverallStrongTrend
	case p.TrendRegime == TrendRanging:
		p.OverallRegime = OverallRanging
	case p.VolatilityRegime == VolLow:
		p.OverallRegime = OverallLowVolatility
	default:
		p.OverallRegime = OverallNormal
	}
	return p, nil
}

// Timeframes maps the overall regime to the timeframe set the orchestrator
// should analyze. Volatile markets get shorter lookbacks, trending markets
// longer ones.
func Timeframes(p Profile) []string {
	switch p.OverallRegime {
	case OverallHighVolatility:
		return []string{"5m", "15m", "1h"}
	case OverallStrongTrend:
		return []string{"1h", "4h", "1d"}
	case OverallRanging:
		return []string{"15m", "1h", "4h"}
	default:
		return []string{"15m", "1h", "4h"}
	}
}
