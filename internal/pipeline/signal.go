package pipeline

import (
	"math"

	"github.com/marketvet/marketvet/internal/market"
)

// Synthesis bonuses awarded to the leading direction.
const (
	trendAgreementBonus  = 30
	timeframeAlignBonus  = 20
	volumeConfirmBonus   = 15
	maxSignalConfidence  = 95
	tieConfidence        = 50
	minAlignedTimeframes = 2
)

// SignalResult is the synthesized directional signal from stage 3.
type SignalResult struct {
	Direction  market.Direction `json:"direction"`
	Confidence int              `json:"confidence"`
	LongScore  float64          `json:"long_score"`
	ShortScore float64          `json:"short_score"`
	TotalScore float64          `json:"total_score"`
}

// signalInputs feeds one synthesis pass.
type signalInputs struct {
	Patterns          []PatternSignal
	Trend             market.Direction
	AlignedTimeframes int // timeframes whose trend agrees with the leading side
	HighVolume        bool
}

// synthesize combines per-pattern confidence contributions by direction, then
// awards the trend, multi-timeframe, and volume bonuses to the leading side.
// Confidence is the leading share of the total score, capped at 95; a tie is
// NEUTRAL at 50 and an empty score NEUTRAL at 0.
func synthesize(in signalInputs) SignalResult {
	var long, short float64
	for _, p := range in.Patterns {
		switch p.Direction {
		case market.DirLong:
			long += p.Confidence
		case market.DirShort:
			short += p.Confidence
		}
	}

	leading := market.DirNeutral
	switch {
	case long > short:
		leading = market.DirLong
	case short > long:
		leading = market.DirShort
	}

	if leading != market.DirNeutral {
		bonus := 0.0
		if in.Trend == leading {
			bonus += trendAgreementBonus
			if in.AlignedTimeframes >= minAlignedTimeframes {
				bonus += timeframeAlignBonus
			}
		}
		if in.HighVolume {
			bonus += volumeConfirmBonus
		}
		if leading == market.DirLong {
			long += bonus
		} else {
			short += bonus
		}
	}

	total := long + short
	res := SignalResult{
		Direction:  leading,
		LongScore:  long,
		ShortScore: short,
		TotalScore: total,
	}
	switch {
	case total == 0:
		res.Direction = market.DirNeutral
		res.Confidence = 0
	case leading == market.DirNeutral:
		res.Confidence = tieConfidence
	default:
		lead := long
		if leading == market.DirShort {
			lead = short
		}
		conf := int(math.Round(100 * lead / total))
		if conf > maxSignalConfidence {
			conf = maxSignalConfidence
		}
		res.Confidence = conf
	}
	return res
}

// trendDirection reads the short-term drift of a series: the sign of the
// close-versus-time correlation once it clears a weak-trend floor.
func trendDirection(s market.Series) market.Direction {
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
