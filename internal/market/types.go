package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientHistory is returned when a computation needs more samples
// than the provided series contains.
var ErrInsufficientHistory = errors.New("insufficient history")

// Direction is the directional call made by an indicator or recommendation.
type Direction int

const (
	DirNeutral Direction = iota
	DirLong
	DirShort
)

func (d Direction) String() string {
	switch d {
	case DirLong:
		return "LONG"
	case DirShort:
		return "SHORT"
	default:
		return "NEUTRAL"
	}
}

// Opposite returns the inverse directional call. Neutral has no inverse.
func (d Direction) Opposite() Direction {
	switch d {
	case DirLong:
		return DirShort
	case DirShort:
		return DirLong
	default:
		return DirNeutral
	}
}

// ParseDirection maps common signal spellings to a Direction. The second
// return is false for neutral/unknown spellings that make no directional call.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "LONG", "BUY", "BULLISH", "UP", "long", "buy", "bullish", "up":
		return DirLong, true
	case "SHORT", "SELL", "BEARISH", "DOWN", "short", "sell", "bearish", "down":
		return DirShort, true
	default:
		return DirNeutral, false
	}
}

// Candle is one OHLCV row of a time series.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is an ascending-ordered candle sequence.
type Series []Candle

// Last returns the most recent candle. Callers must check Len first.
func (s Series) Last() Candle {
	return s[len(s)-1]
}

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume column.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Volume
	}
	return out
}

// Returns computes simple per-period returns over closes.
func (s Series) Returns() []float64 {
	if len(s) < 2 {
		return nil
	}
	out := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		prev := s[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, (s[i].Close-prev)/prev)
	}
	return out
}

// Age reports how stale the series is relative to now.
func (s Series) Age(now time.Time) time.Duration {
	if len(s) == 0 {
		return 0
	}
	return now.Sub(s.Last().Timestamp)
}

// Validate applies basic sanity checks: non-empty, positive prices,
// high >= low >= 0, open/close within the high-low range, ascending
// timestamps. Sources failing these checks are treated as failed fetches.
func Validate(s Series) error {
	if len(s) == 0 {
		return errors.New("empty series")
	}
	var prev time.Time
	for i, c := range s {
		if c.High < c.Low || c.Low < 0 {
			return fmt.Errorf("candle %d: high %.8f < low %.8f", i, c.High, c.Low)
		}
		if c.Open <= 0 || c.Close <= 0 {
			return fmt.Errorf("candle %d: non-positive open/close", i)
		}
		if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
			return fmt.Errorf("candle %d: open/close outside high-low range", i)
		}
		if c.Volume < 0 {
			return fmt.Errorf("candle %d: negative volume", i)
		}
		if i > 0 && !c.Timestamp.After(prev) {
			return fmt.Errorf("candle %d: timestamps not strictly ascending", i)
		}
		prev = c.Timestamp
	}
	return nil
}
