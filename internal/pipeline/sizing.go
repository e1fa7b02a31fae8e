package pipeline

import (
	"errors"

	"github.com/marketvet/marketvet/internal/market"
	"github.com/marketvet/marketvet/internal/regime"
)

// positionSize derives the stage-7 sizing: risk a fixed fraction of equity
// against an ATR-based stop, with the notional capped at a fraction of equity.
func positionSize(s market.Series, equity float64, dir market.Direction, params regime.Params, cfg Config) (*PositionSize, error) {
	if len(s) == 0 {
		return nil, market.ErrInsufficientHistory
	}
	if equity <= 0 {
		return nil, errors.New("no equity to size against")
	}

	entry := s.Last().Close
	atr := averageTrueRange(s, params.ATRPeriod)
	if atr <= 0 {
		return nil, market.ErrInsufficientHistory
	}

	stopDistance := atr * params.StopATRMultiple
	stop := entry - stopDistance
	if dir == market.DirShort {
		stop = entry + stopDistance
	}

	riskAmount := equity * cfg.RiskPerTrade
	quantity := riskAmount / stopDistance
	notional := quantity * entry
	if limit := equity * cfg.MaxPositionFraction; notional > limit {
		quantity = limit / entry
		notional = limit
		riskAmount = quantity * stopDistance
	}

	return &PositionSize{
		Entry:            entry,
		Stop:             stop,
		Quantity:         quantity,
		Notional:         notional,
		RiskAmount:       riskAmount,
		FractionOfEquity: notional / equity,
	}, nil
}

// averageTrueRange is the mean true range over the trailing period.
func averageTrueRange(s market.Series, period int) float64 {
	if period <= 0 {
		period = 14
	}
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
