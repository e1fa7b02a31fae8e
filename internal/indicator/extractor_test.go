package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketvet/marketvet/internal/market"
)

func seriesFromCloses(closes []float64) market.Series {
	s := make(market.Series, len(closes))
	base := time.Now().Add(-time.Duration(len(closes)) * time.Hour)
	for i, c := range closes {
		s[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c * 0.999,
			High:      c * 1.002,
			Low:       c * 0.997,
			Close:     c,
			Volume:    1000,
		}
	}
	return s
}

func rampCloses(n int, start, stepPct float64) []float64 {
	out := make([]float64, n)
	price := start
	for i := range out {
		out[i] = price
		price *= 1 + stepPct
	}
	return out
}

func TestAnalyzeTooShortSeries(t *testing.T) {
	_, err := Extractor{}.Analyze(context.Background(), seriesFromCloses(rampCloses(5, 100, 0.001)))
	assert.ErrorIs(t, err, market.ErrInsufficientHistory)
}

func TestAnalyzeUptrendEmitsLongBias(t *testing.T) {
	bundle, err := Extractor{}.Analyze(context.Background(), seriesFromCloses(rampCloses(120, 100, 0.002)))
	require.NoError(t, err)

	assert.Equal(t, market.DirLong, bundle.Trend)
	require.NotEmpty(t, bundle.Patterns)
	var sawEMALong bool
	for _, p := range bundle.Patterns {
		assert.NotEmpty(t, p.Indicator)
		assert.GreaterOrEqual(t, p.Confidence, 50.0)
		assert.LessOrEqual(t, p.Confidence, 80.0)
		if p.Indicator == "ema_cross" {
			sawEMALong = true
			assert.Equal(t, market.DirLong, p.Direction)
		}
	}
	assert.True(t, sawEMALong, "steady uptrend should put the fast EMA above the slow")
}

func TestAnalyzeDowntrendEmitsShortBias(t *testing.T) {
	bundle, err := Extractor{}.Analyze(context.Background(), seriesFromCloses(rampCloses(120, 100, -0.002)))
	require.NoError(t, err)
	assert.Equal(t, market.DirShort, bundle.Trend)
	for _, p := range bundle.Patterns {
		if p.Indicator == "ema_cross" {
			assert.Equal(t, market.DirShort, p.Direction)
		}
	}
}

func TestRSIExtremes(t *testing.T) {
	up, err := rsi(rampCloses(30, 100, 0.01), 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, up)

	down, err := rsi(rampCloses(30, 100, -0.01), 14)
	require.NoError(t, err)
	assert.Equal(t, 0.0, down)

	_, err = rsi(rampCloses(10, 100, 0.01), 14)
	assert.ErrorIs(t, err, market.ErrInsufficientHistory)
}

func TestHighVolumeDetection(t *testing.T) {
	s := seriesFromCloses(rampCloses(50, 100, 0.001))
	assert.False(t, highVolume(s))
	s[len(s)-1].Volume = 10000
	assert.True(t, highVolume(s))
}
