// Package indicator is the built-in feature extractor: classic technical
// indicators computed with regime-tuned parameters, emitting directional
// pattern signals for the pipeline to synthesize.
package indicator

import (
	"context"
	"math"

	"github.com/marketvet/marketvet/internal/market"
	"github.com/marketvet/marketvet/internal/pipeline"
	"github.com/marketvet/marketvet/internal/regime"
)

// Extractor computes RSI, EMA cross, and ATR breakout signals.
type Extractor struct {
	// PeriodsPerDay scales volatility for regime classification; 24 for
	// hourly candles.
	PeriodsPerDay float64
}

// Analyze derives the feature bundle for one series. It errors only when the
// series is too short to compute anything.
func (e Extractor) Analyze(_ context.Context, s market.Series) (pipeline.FeatureBundle, error) {
	ppd := e.PeriodsPerDay
	if ppd <= 0 {
		ppd = 24
	}
	profile, err := regime.Classify(s, ppd)
	if err != nil {
		return pipeline.FeatureBundle{}, err
	}

	var patterns []pipeline.PatternSignal
	if p, ok := rsiSignal(s, regime.Adjust("rsi", profile)); ok {
		patterns = append(patterns, p)
	}
	if p, ok := emaCrossSignal(s, regime.Adjust("ema_cross", profile)); ok {
		patterns = append(patterns, p)
	}
	if p, ok := atrBreakoutSignal(s, regime.Adjust("atr_breakout", profile)); ok {
		patterns = append(patterns, p)
	}

	return pipeline.FeatureBundle{
		Patterns:   patterns,
		Trend:      trendOf(s),
		HighVolume: highVolume(s),
	}, nil
}

// rsiSignal reads RSI extremes as mean-reversion entries.
func rsiSignal(s market.Series, params regime.Params) (pipeline.PatternSignal, bool) {
	value, err := rsi(s.Closes(), params.RSIPeriod)
	if err != nil {
		return pipeline.PatternSignal{}, false
	}
	switch {
	case value <= params.RSIOversold:
		conf := 50 + (params.RSIOversold-value)/params.RSIOversold*30
		return pipeline.PatternSignal{
			Name: "rsi_oversold", Indicator: "rsi",
			Direction: market.DirLong, Confidence: conf,
		}, true
	case value >= params.RSIOverbought:
		conf := 50 + (value-params.RSIOverbought)/(100-params.RSIOverbought)*30
		return pipeline.PatternSignal{
			Name: "rsi_overbought", Indicator: "rsi",
			Direction: market.DirShort, Confidence: conf,
		}, true
	}
	return pipeline.PatternSignal{}, false
}

// emaCrossSignal reads the fast/slow EMA relationship as trend continuation.
func emaCrossSignal(s market.Series, params regime.Params) (pipeline.PatternSignal, bool) {
	closes := s.Closes()
	if len(closes) < params.EMASlowPeriod {
		return pipeline.PatternSignal{}, false
	}
	fast := ema(closes, params.EMAFastPeriod)
	slow := ema(closes, params.EMASlowPeriod)
	if slow == 0 {
		return pipeline.PatternSignal{}, false
	}
	gap := (fast - slow) / slow
	if math.Abs(gap) < 0.001 {
		return pipeline.PatternSignal{}, false
	}
	dir := market.DirLong
	if gap < 0 {
		dir = market.DirShort
	}
	conf := 50 + math.Min(math.Abs(gap)*1000, 30)
	return pipeline.PatternSignal{
		Name: "ema_cross", Indicator: "ema_cross",
		Direction: dir, Confidence: conf,
	}, true
}

// atrBreakoutSignal fires when the last close escapes an ATR band around the
// trailing mean.
func atrBreakoutSignal(s market.Series, params regime.Params) (pipeline.PatternSignal, bool) {
	period := params.ATRPeriod
	if period <= 0 || len(s) < period+1 {
		return pipeline.PatternSignal{}, false
	}
	window := s[len(s)-period-1 : len(s)-1]
	mean := market.Mean(window.Closes())
	atr := averageTrueRange(s, period)
	if atr <= 0 {
		return pipeline.PatternSignal{}, false
	}
	band := atr * params.StopATRMultiple
	last := s.Last().Close
	switch {
	case last > mean+band:
		return pipeline.PatternSignal{
			Name: "atr_breakout_up", Indicator: "atr_breakout",
			Direction: market.DirLong, Confidence: 55,
		}, true
	case last < mean-band:
		return pipeline.PatternSignal{
			Name: "atr_breakout_down", Indicator: "atr_breakout",
			Direction: market.DirShort, Confidence: 55,
		}, true
	}
	return pipeline.PatternSignal{}, false
}

func trendOf(s market.Series) market.Direction {
	if len(s) < 3 {
		return market.DirNeutral
	}
	closes := s.Closes()
	index := make([]float64, len(closes))
	for i := range index {
		index[i] = float64(i)
	}
	corr := market.Correlation(index, closes)
	switch {
	case corr > 0.3:
		return market.DirLong
	case corr < -0.3:
		return market.DirShort
	default:
		return market.DirNeutral
	}
}

func highVolume(s market.Series) bool {
	if len(s) < 2 {
		return false
	}
	return s.Last().Volume > 1.5*market.Mean(s.Volumes())
}

// rsi is the simple-average relative strength index over the period.
func rsi(closes []float64, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(closes) < period+1 {
		return 0, market.ErrInsufficientHistory
	}
	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100, nil
	}
	rs := gains / losses
	return 100 - 100/(1+rs), nil
}

// ema is the exponential moving average seeded on the first value.
func ema(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 {
		period = len(values)
	}
	k := 2.0 / (float64(period) + 1)
	e := values[0]
	for _, v := range values[1:] {
		e = v*k + e*(1-k)
	}
	return e
}

func averageTrueRange(s market.Series, period int) float64 {
	if len(s) < 2 {
		return 0
	}
	start := len(s) - period
	if start < 1 {
		start = 1
	}
	var sum float64
	var n int
	for i := start; i < len(s); i++ {
		prevClose := s[i-1].Close
		tr := s[i].High - s[i].Low
		if d := s[i].High - prevClose; d > tr {
			tr = d
		}
		if d := prevClose - s[i].Low; d > tr {
			tr = d
		}
		sum += tr
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
