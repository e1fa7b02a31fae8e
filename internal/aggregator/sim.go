package aggregator

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"github.com/marketvet/marketvet/internal/market"
)

// SimulatedSource produces a deterministic synthetic random walk. It stands
// in for a real exchange binding in the CLI and in offline runs; the walk is
// seeded from (id, symbol, timeframe) so repeated fetches agree.
type SimulatedSource struct {
	id        string
	basePrice float64
	// Skew shifts the walk's drift so sources can be made to disagree.
	Skew float64
	// Fail forces every fetch to error, for degradation drills.
	Fail bool
	// Latency is added to every fetch.
	Latency time.Duration
}

// NewSimulatedSource creates a synthetic source around a base price.
func NewSimulatedSource(id string, basePrice float64) *SimulatedSource {
	return &SimulatedSource{id: id, basePrice: basePrice}
}

func (s *SimulatedSource) ID() string { return s.id }

// Fetch generates limit candles ending at the current aligned period.
func (s *SimulatedSource) Fetch(ctx context.Context, symbol, timeframe string, limit int) (market.Series, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Fail {
		return nil, fmt.Errorf("simulated outage on %s", s.id)
	}
	if limit <= 0 {
		limit = 100
	}

	step, err := TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}

	h := fnv.New64a()
	h.Write([]byte(s.id + "|" + symbol + "|" + timeframe))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	end := time.Now().Truncate(step)
	price := s.basePrice
	series := make(market.Series, 0, limit)
	for i := 0; i < limit; i++ {
		drift := (rng.Float64() - 0.5 + s.Skew) * 0.01 * price
		open := price
		close := price + drift
		high := open
		if close > high {
			high = close
		}
		high *= 1 + rng.Float64()*0.002
		low := open
		if close < low {
			low = close
		}
		low *= 1 - rng.Float64()*0.002
		series = append(series, market.Candle{
			Timestamp: end.Add(-time.Duration(limit-1-i) * step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + rng.Float64()*9000,
		})
		price = close
	}
	return series, nil
}

// TimeframeDuration maps timeframe labels like "15m", "1h", "4h", "1d" to a
// candle duration.
func TimeframeDuration(tf string) (time.Duration, error) {
	if strings.HasSuffix(tf, "d") {
		var days int
		if _, err := fmt.Sscanf(tf, "%dd", &days); err != nil || days <= 0 {
			return 0, fmt.Errorf("bad timeframe %q", tf)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(tf)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("bad timeframe %q", tf)
	}
	return d, nil
}
