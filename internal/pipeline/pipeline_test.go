package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketvet/marketvet/internal/accuracy"
	"github.com/marketvet/marketvet/internal/aggregator"
	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/market"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// fakeProvider scripts per-timeframe results; failAttempts[tf] fetches fail
// before the scripted result is served.
type fakeProvider struct {
	mu           sync.Mutex
	results      map[string]aggregator.Result
	failAttempts map[string]int
	calls        map[string]int
}

func (p *fakeProvider) FetchAndValidate(_ context.Context, _, timeframe string, _ int) (aggregator.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[timeframe]++
	if p.calls[timeframe] <= p.failAttempts[timeframe] {
		return aggregator.Result{Report: aggregator.ValidationReport{Status: aggregator.StatusInsufficientSources}}, nil
	}
	return p.results[timeframe], nil
}

type fakeExtractor struct {
	bundle FeatureBundle
	err    error
}

func (f fakeExtractor) Analyze(context.Context, market.Series) (FeatureBundle, error) {
	return f.bundle, f.err
}

func trendingSeries(n int, start float64, step time.Duration, end time.Time) market.Series {
	s := make(market.Series, n)
	price := start
	for i := 0; i < n; i++ {
		next := price * 1.001
		s[i] = market.Candle{
			Timestamp: end.Add(-time.Duration(n-1-i) * step),
			Open:      price,
			High:      next * 1.002,
			Low:       price * 0.998,
			Close:     next,
			Volume:    1000,
		}
		price = next
	}
	return s
}

func validResult(s market.Series, source string) aggregator.Result {
	return aggregator.Result{
		ChosenSeries: s,
		ChosenSource: source,
		Report:       aggregator.ValidationReport{Status: aggregator.StatusSuccess, Confidence: 0.95},
	}
}

func longBundle() FeatureBundle {
	return FeatureBundle{
		Patterns: []PatternSignal{{Name: "golden_cross", Direction: market.DirLong, Confidence: 60}},
		Trend:    market.DirLong,
	}
}

func TestRunHaltsWhenFewerThanTwoTimeframesValid(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{
		results: map[string]aggregator.Result{
			"1h": validResult(trendingSeries(200, 100, time.Hour, now), "alpha"),
		},
	}
	clock := &fakeClock{now: now}
	o := New(Config{Timeframes: []string{"15m", "1h", "4h"}}, provider, fakeExtractor{}, WithClock(clock))

	rec, err := o.Run(context.Background(), Request{Symbol: "BTC-USD"})
	require.NoError(t, err)
	assert.Equal(t, ActionNoTrade, rec.Action)
	assert.Equal(t, "insufficient timeframes", rec.Reason)
	assert.Empty(t, rec.StagesPassed)
	assert.Nil(t, rec.Signal)
	assert.Len(t, rec.Reports, 3)
}

func TestFetchRetriesWithExponentialBackoff(t *testing.T) {
	now := time.Now()
	s := trendingSeries(200, 100, time.Hour, now)
	provider := &fakeProvider{
		results: map[string]aggregator.Result{
			"15m": validResult(s, "alpha"),
			"1h":  validResult(s, "alpha"),
		},
		failAttempts: map[string]int{"15m": 2},
	}
	clock := &fakeClock{now: now}
	o := New(Config{Timeframes: []string{"15m", "1h"}}, provider, fakeExtractor{bundle: longBundle()}, WithClock(clock))

	rec, err := o.Run(context.Background(), Request{Symbol: "BTC-USD", Equity: 10000})
	require.NoError(t, err)
	assert.Contains(t, rec.StagesPassed, StageDataCollection)
	assert.Equal(t, 3, provider.calls["15m"])
	assert.Equal(t, 1, provider.calls["1h"])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps)
}

func TestRunFullPassProducesSizedLongRecommendation(t *testing.T) {
	now := time.Now()
	s := trendingSeries(200, 100, time.Hour, now)
	provider := &fakeProvider{
		results: map[string]aggregator.Result{
			"15m": validResult(s, "alpha"),
			"1h":  validResult(s, "beta"),
		},
	}
	o := New(Config{Timeframes: []string{"15m", "1h"}}, provider,
		fakeExtractor{bundle: longBundle()}, WithClock(&fakeClock{now: now}))

	rec, err := o.Run(context.Background(), Request{Symbol: "BTC-USD", Equity: 10000})
	require.NoError(t, err)

	assert.Equal(t, ActionLong, rec.Action)
	assert.Equal(t, []Stage{
		StageDataCollection, StageFeatures, StageSignal,
		StageScenario, StageRisk, StageValidation, StageSizing,
	}, rec.StagesPassed)
	assert.GreaterOrEqual(t, rec.Confidence, 65.0)
	require.NotNil(t, rec.Sizing)
	assert.Less(t, rec.Sizing.Stop, rec.Sizing.Entry)
	assert.LessOrEqual(t, rec.Sizing.Notional, 10000*0.25+1e-9)
	require.NotNil(t, rec.Regime)
	assert.NotEmpty(t, rec.SuggestedTimeframes)
	require.NotNil(t, rec.Scenario)
	assert.Equal(t, 1.0, rec.Scenario.ProbProfit)
	require.NotNil(t, rec.Risk)
	assert.NotEmpty(t, rec.RunID)
}

func TestRunRejectsTiedSignal(t *testing.T) {
	now := time.Now()
	s := trendingSeries(200, 100, time.Hour, now)
	provider := &fakeProvider{
		results: map[string]aggregator.Result{
			"15m": validResult(s, "alpha"),
			"1h":  validResult(s, "alpha"),
		},
	}
	bundle := FeatureBundle{Patterns: []PatternSignal{
		{Name: "a", Direction: market.DirLong, Confidence: 60},
		{Name: "b", Direction: market.DirShort, Confidence: 60},
	}}
	o := New(Config{Timeframes: []string{"15m", "1h"}}, provider,
		fakeExtractor{bundle: bundle}, WithClock(&fakeClock{now: now}))

	rec, err := o.Run(context.Background(), Request{Symbol: "BTC-USD", Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, ActionNoTrade, rec.Action)
	assert.Contains(t, rec.Reason, "no directional consensus")
	assert.NotContains(t, rec.StagesPassed, StageValidation)
	require.NotNil(t, rec.Signal)
	assert.Equal(t, 50, rec.Signal.Confidence)
}

func TestRunRejectsStaleData(t *testing.T) {
	now := time.Now()
	stale := trendingSeries(200, 100, time.Hour, now.Add(-2*time.Hour))
	provider := &fakeProvider{
		results: map[string]aggregator.Result{
			"15m": validResult(stale, "alpha"),
			"1h":  validResult(stale, "alpha"),
		},
	}
	o := New(Config{Timeframes: []string{"15m", "1h"}}, provider,
		fakeExtractor{bundle: longBundle()}, WithClock(&fakeClock{now: now}))

	rec, err := o.Run(context.Background(), Request{Symbol: "BTC-USD", Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, ActionNoTrade, rec.Action)
	assert.Contains(t, rec.Reason, "old")
}

func TestRunDegradesWhenExtractorFails(t *testing.T) {
	now := time.Now()
	s := trendingSeries(200, 100, time.Hour, now)
	provider := &fakeProvider{
		results: map[string]aggregator.Result{
			"15m": validResult(s, "alpha"),
			"1h":  validResult(s, "alpha"),
		},
	}
	monitor := health.NewMonitor(health.Config{})
	o := New(Config{Timeframes: []string{"15m", "1h"}}, provider,
		fakeExtractor{err: assert.AnError}, WithClock(&fakeClock{now: now}), WithMonitor(monitor))

	rec, err := o.Run(context.Background(), Request{Symbol: "BTC-USD", Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, ActionNoTrade, rec.Action)
	assert.NotContains(t, rec.StagesPassed, StageFeatures)
	assert.Contains(t, rec.StagesPassed, StageSignal)
	assert.Contains(t, strings.Join(rec.Notes, "\n"), "feature extraction failed")
	assert.Contains(t, strings.Join(rec.Notes, "\n"), "fallback: proceed with empty feature set")
	assert.Contains(t, rec.Reason, "no directional consensus")
}

func TestRunReturnsPartialResultOnDeadline(t *testing.T) {
	now := time.Now()
	s := trendingSeries(200, 100, time.Hour, now)
	provider := &fakeProvider{
		results: map[string]aggregator.Result{
			"15m": validResult(s, "alpha"),
			"1h":  validResult(s, "alpha"),
		},
	}
	o := New(Config{Timeframes: []string{"15m", "1h"}}, provider,
		fakeExtractor{bundle: longBundle()}, WithClock(&fakeClock{now: now}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := o.Run(ctx, Request{Symbol: "BTC-USD", Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageDataCollection}, rec.StagesPassed)
	assert.Equal(t, ActionNoTrade, rec.Action)
	assert.Contains(t, strings.Join(rec.Notes, "\n"), "deadline reached before FEATURES")
}

func TestWeighPatternsDropsUnreliableAndScalesRest(t *testing.T) {
	tracker, err := accuracy.NewTracker(accuracy.Config{}, staticStore{}, nil)
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		require.NoError(t, tracker.RecordOutcome(accuracy.Outcome{
			Symbol:          "BTC-USD",
			PredictedAction: "LONG",
			Success:         false,
			IndicatorsUsed:  map[string]string{"rsi": "LONG"},
		}))
	}
	require.Contains(t, tracker.DetectUnreliable(0.45), "rsi")

	o := New(Config{}, nil, nil, WithTracker(tracker))
	rec := &Recommendation{}
	out := o.weighPatterns(rec, "BTC-USD", []PatternSignal{
		{Name: "oversold", Indicator: "rsi", Direction: market.DirLong, Confidence: 60},
		{Name: "crossover", Indicator: "macd", Direction: market.DirLong, Confidence: 50},
		{Name: "unattributed", Direction: market.DirShort, Confidence: 40},
	})

	require.Len(t, out, 2)
	assert.Equal(t, "crossover", out[0].Name)
	assert.InDelta(t, 50*0.55/0.5, out[0].Confidence, 1e-9)
	assert.Equal(t, "unattributed", out[1].Name)
	assert.Equal(t, 40.0, out[1].Confidence)
	assert.Contains(t, strings.Join(rec.Notes, "\n"), "rsi")
}

// staticStore persists nothing, for tracker wiring in tests.
type staticStore struct{}

func (staticStore) Load() ([]accuracy.Record, []accuracy.Outcome, error) { return nil, nil, nil }
func (staticStore) Save([]accuracy.Record, []accuracy.Outcome) error     { return nil }

func TestPolicyDelayGrowsExponentially(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}
