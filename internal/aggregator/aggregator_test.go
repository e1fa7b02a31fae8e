package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/market"
)

type fakeSource struct {
	id     string
	series market.Series
	err    error
	calls  int
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Fetch(_ context.Context, _, _ string, _ int) (market.Series, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.series, nil
}

// seriesEndingAt builds a valid series whose last close and volume are given.
func seriesEndingAt(lastClose, lastVolume float64, n int) market.Series {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	out := make(market.Series, n)
	for i := 0; i < n; i++ {
		price := lastClose * (1 - 0.0001*float64(n-1-i))
		open := price * 0.999
		out[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i-n+1) * time.Hour),
			Open:      open,
			High:      price * 1.001,
			Low:       open * 0.998,
			Close:     price,
			Volume:    lastVolume,
		}
	}
	return out
}

func newTestAggregator(srcs ...Source) *Aggregator {
	cfg := DefaultConfig()
	cfg.PriorityRanks = map[string]float64{"alpha": 1.0, "beta": 0.7, "gamma": 0.4}
	return New(cfg, srcs, WithMonitor(health.NewMonitor(health.DefaultConfig())))
}

func TestFetchAndValidate_TightConsensus(t *testing.T) {
	// Scenario: latest values 100, 101, 99 all within 5% of median 100.
	agg := newTestAggregator(
		&fakeSource{id: "alpha", series: seriesEndingAt(100, 5000, 30)},
		&fakeSource{id: "beta", series: seriesEndingAt(101, 5000, 30)},
		&fakeSource{id: "gamma", series: seriesEndingAt(99, 5000, 30)},
	)

	res, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Report.Status)
	assert.Empty(t, res.Report.Anomalies)
	assert.GreaterOrEqual(t, res.Report.Confidence, 0.95)
	assert.InDelta(t, 100.0, res.Report.ConsensusValue, 1e-9)
	assert.Equal(t, "alpha", res.ChosenSource)
	require.NotEmpty(t, res.ChosenSeries)
}

func TestFetchAndValidate_TwoSourceDisagreement(t *testing.T) {
	// Scenario: 100 vs 130 is a single HIGH unattributed deviation.
	agg := newTestAggregator(
		&fakeSource{id: "alpha", series: seriesEndingAt(100, 5000, 30)},
		&fakeSource{id: "beta", series: seriesEndingAt(130, 5000, 30)},
	)

	res, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
	require.NoError(t, err)

	assert.Equal(t, StatusAnomaliesDetected, res.Report.Status)
	require.Len(t, res.Report.Anomalies, 1)
	a := res.Report.Anomalies[0]
	assert.Equal(t, KindPriceDeviation, a.Kind)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Empty(t, a.SourceID)
	assert.LessOrEqual(t, res.Report.Confidence, 0.70)
}

func TestFetchAndValidate_InsufficientSources(t *testing.T) {
	down := errors.New("connection refused")

	t.Run("one source up", func(t *testing.T) {
		agg := newTestAggregator(
			&fakeSource{id: "alpha", series: seriesEndingAt(100, 5000, 30)},
			&fakeSource{id: "beta", err: down},
		)
		res, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
		require.NoError(t, err)

		assert.Equal(t, StatusInsufficientSources, res.Report.Status)
		assert.InDelta(t, 0.5, res.Report.Confidence, 1e-9)
		assert.Empty(t, res.Report.Anomalies)
		assert.Equal(t, "alpha", res.ChosenSource)
	})

	t.Run("all sources down", func(t *testing.T) {
		agg := newTestAggregator(
			&fakeSource{id: "alpha", err: down},
			&fakeSource{id: "beta", err: down},
		)
		res, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
		require.NoError(t, err)

		assert.Equal(t, StatusInsufficientSources, res.Report.Status)
		assert.Zero(t, res.Report.Confidence)
		assert.Empty(t, res.ChosenSource)
		for _, pr := range res.PerSource {
			assert.False(t, pr.OK)
			assert.NotEmpty(t, pr.Err)
		}
	})
}

func TestFetchAndValidate_PerSourceFailureDoesNotAbort(t *testing.T) {
	agg := newTestAggregator(
		&fakeSource{id: "alpha", series: seriesEndingAt(100, 5000, 30)},
		&fakeSource{id: "beta", err: errors.New("timeout")},
		&fakeSource{id: "gamma", series: seriesEndingAt(100.5, 5000, 30)},
	)

	res, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Report.Status)
	assert.InDelta(t, 0.85, res.Report.Confidence, 0.06) // two sources, tight consensus
}

func TestFetchAndValidate_MalformedSeriesCountsAsFailure(t *testing.T) {
	bad := seriesEndingAt(100, 5000, 30)
	bad[10].High = bad[10].Low - 1 // violates high >= low

	agg := newTestAggregator(
		&fakeSource{id: "alpha", series: bad},
		&fakeSource{id: "beta", series: seriesEndingAt(100, 5000, 30)},
	)

	res, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
	require.NoError(t, err)
	assert.Equal(t, StatusInsufficientSources, res.Report.Status)
	assert.Equal(t, "beta", res.ChosenSource)
}

func TestFetchAndValidate_VolumeInconsistency(t *testing.T) {
	agg := New(DefaultConfig(), []Source{
		&fakeSource{id: "s1", series: seriesEndingAt(100, 1, 30)},
		&fakeSource{id: "s2", series: seriesEndingAt(100.1, 1, 30)},
		&fakeSource{id: "s3", series: seriesEndingAt(99.9, 1, 30)},
		&fakeSource{id: "s4", series: seriesEndingAt(100.2, 1, 30)},
		&fakeSource{id: "s5", series: seriesEndingAt(99.8, 50000, 30)},
	})

	res, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
	require.NoError(t, err)

	require.Len(t, res.Report.Anomalies, 1)
	a := res.Report.Anomalies[0]
	assert.Equal(t, KindVolumeInconsistency, a.Kind)
	assert.Equal(t, SeverityLow, a.Severity)
	assert.Greater(t, a.Magnitude, 2.0)
}

func TestConfidenceScore_BoundsAndMonotonicity(t *testing.T) {
	for sources := 0; sources <= 5; sources++ {
		prev := 1.1
		for anomalies := 0; anomalies <= 6; anomalies++ {
			c := confidenceScore(sources, anomalies, 0.02)
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 1.0)
			assert.LessOrEqual(t, c, prev,
				"confidence must be non-increasing in anomaly count")
			prev = c
		}
	}
	// Tight consensus bonus applies under 1% CV only.
	assert.Greater(t, confidenceScore(3, 0, 0.005), confidenceScore(3, 0, 0.02))
}

func TestSelectBest_ExcludesHighSeveritySources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriorityRanks = map[string]float64{"outlier": 1.0, "honest": 0.2}

	results := []SourceResult{
		{SourceID: "outlier", OK: true, LatencyMS: 10, Series: seriesEndingAt(150, 1, 5)},
		{SourceID: "honest", OK: true, LatencyMS: 4900, Series: seriesEndingAt(100, 1, 5)},
		{SourceID: "honest2", OK: true, LatencyMS: 4900, Series: seriesEndingAt(100, 1, 5)},
	}
	report := ValidationReport{Anomalies: []Anomaly{
		{Kind: KindPriceDeviation, SourceID: "outlier", Severity: SeverityHigh, Magnitude: 0.5},
	}}

	chosen, ok := cfg.selectBest(results, &report)
	require.True(t, ok)
	assert.NotEqual(t, "outlier", chosen.SourceID,
		"a HIGH-flagged source must not win selection while alternatives exist")
	assert.False(t, report.ForcedInclusion)
}

func TestSelectBest_ForcedInclusionWhenAllFlagged(t *testing.T) {
	cfg := DefaultConfig()
	results := []SourceResult{
		{SourceID: "only", OK: true, Series: seriesEndingAt(100, 1, 5)},
	}
	report := ValidationReport{Anomalies: []Anomaly{
		{Kind: KindPriceDeviation, SourceID: "only", Severity: SeverityHigh, Magnitude: 0.5},
	}}

	chosen, ok := cfg.selectBest(results, &report)
	require.True(t, ok)
	assert.Equal(t, "only", chosen.SourceID)
	assert.True(t, report.ForcedInclusion)
}

func TestSelectBest_PriorityAndLatencyWeighting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriorityRanks = map[string]float64{"fastlow": 0.1, "slowhigh": 0.9}

	results := []SourceResult{
		{SourceID: "fastlow", OK: true, LatencyMS: 0},
		{SourceID: "slowhigh", OK: true, LatencyMS: 4000},
	}
	// fastlow: 0.7*0.1 + 0.3*1.0 = 0.37; slowhigh: 0.7*0.9 + 0.3*0.2 = 0.69
	report := ValidationReport{}
	chosen, ok := cfg.selectBest(results, &report)
	require.True(t, ok)
	assert.Equal(t, "slowhigh", chosen.SourceID)
}

func TestRateLimiter_DeniedFetchIsSourceFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerSecond = 0.001
	cfg.RateBurst = 1
	src := &fakeSource{id: "alpha", series: seriesEndingAt(100, 5000, 30)}
	agg := New(cfg, []Source{src})

	res1, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
	require.NoError(t, err)
	assert.True(t, res1.PerSource[0].OK)

	res2, err := agg.FetchAndValidate(context.Background(), "BTC-USD", "1h", 30)
	require.NoError(t, err)
	assert.False(t, res2.PerSource[0].OK)
	assert.Contains(t, res2.PerSource[0].Err, "rate limited")
	assert.Equal(t, 1, src.calls, "denied fetch must not hit the source")
}

func TestTimeframeDuration(t *testing.T) {
	d, err := TimeframeDuration("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	d, err = TimeframeDuration("1d")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = TimeframeDuration("soon")
	assert.Error(t, err)
}
