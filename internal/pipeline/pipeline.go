package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/marketvet/marketvet/internal/accuracy"
	"github.com/marketvet/marketvet/internal/aggregator"
	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/market"
	"github.com/marketvet/marketvet/internal/metrics"
	"github.com/marketvet/marketvet/internal/regime"
)

// Config tunes the orchestrator's gates and stage parameters.
type Config struct {
	Timeframes          []string      `yaml:"timeframes"`
	CandleLimit         int           `yaml:"candle_limit"`
	MinConfidence       int           `yaml:"min_confidence"`
	MaxDataAge          time.Duration `yaml:"max_data_age"`
	MinRiskReward       float64       `yaml:"min_risk_reward"`
	RiskPerTrade        float64       `yaml:"risk_per_trade"`
	MaxPositionFraction float64       `yaml:"max_position_fraction"`
	UnreliableBelow     float64       `yaml:"unreliable_below"`
	ScenarioPaths       int           `yaml:"scenario_paths"`
	ScenarioHorizon     int           `yaml:"scenario_horizon"`
	ScenarioSeed        int64         `yaml:"scenario_seed"`
	Retry               Policy        `yaml:"retry"`
}

// DefaultConfig returns the documented pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Timeframes:          []string{"15m", "1h", "4h"},
		CandleLimit:         200,
		MinConfidence:       65,
		MaxDataAge:          15 * time.Minute,
		MinRiskReward:       1.5,
		RiskPerTrade:        0.01,
		MaxPositionFraction: 0.25,
		UnreliableBelow:     0.45,
		ScenarioPaths:       500,
		ScenarioHorizon:     24,
		ScenarioSeed:        1,
		Retry:               DefaultPolicy(),
	}
}

// Orchestrator runs the staged decision pipeline. Stage 1 and stage 6 are hard
// gates; every other stage degrades to a note and a partial result.
type Orchestrator struct {
	cfg       Config
	provider  SeriesProvider
	extractor FeatureExtractor
	tracker   *accuracy.Tracker
	monitor   *health.Monitor
	metrics   *metrics.Collector
	clock     Clock
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTracker enables accuracy-weighted signal synthesis and unreliable
// indicator gating.
func WithTracker(t *accuracy.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithMonitor records per-stage health and lets system status block trades.
func WithMonitor(m *health.Monitor) Option {
	return func(o *Orchestrator) { o.monitor = m }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(mc *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = mc }
}

// WithClock substitutes the time source, for tests.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// New builds an orchestrator; zero-value config fields fall back to defaults.
func New(cfg Config, provider SeriesProvider, extractor FeatureExtractor, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = def.Timeframes
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = def.CandleLimit
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.MaxDataAge <= 0 {
		cfg.MaxDataAge = def.MaxDataAge
	}
	if cfg.MinRiskReward <= 0 {
		cfg.MinRiskReward = def.MinRiskReward
	}
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = def.RiskPerTrade
	}
	if cfg.MaxPositionFraction <= 0 {
		cfg.MaxPositionFraction = def.MaxPositionFraction
	}
	if cfg.UnreliableBelow <= 0 {
		cfg.UnreliableBelow = def.UnreliableBelow
	}
	if cfg.ScenarioPaths <= 0 {
		cfg.ScenarioPaths = def.ScenarioPaths
	}
	if cfg.ScenarioHorizon <= 0 {
		cfg.ScenarioHorizon = def.ScenarioHorizon
	}
	if cfg.ScenarioSeed == 0 {
		cfg.ScenarioSeed = def.ScenarioSeed
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}

	o := &Orchestrator{
		cfg:       cfg,
		provider:  provider,
		extractor: extractor,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one analysis pass for the request and always returns a
// recommendation; NO_TRADE with a reason is a result, not an error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Recommendation, error) {
	rec := &Recommendation{
		RunID:        uuid.NewString(),
		Symbol:       req.Symbol,
		Action:       ActionNoTrade,
		StagesPassed: []Stage{},
		Reports:      make(map[string]aggregator.ValidationReport),
		StartedAt:    o.clock.Now(),
	}
	defer func() {
		rec.FinishedAt = o.clock.Now()
		o.metrics.RecordRecommendation(string(rec.Action))
		log.Info().Str("run_id", rec.RunID).Str("symbol", rec.Symbol).
			Str("action", string(rec.Action)).Float64("confidence", rec.Confidence).
			Int("stages_passed", len(rec.StagesPassed)).Str("reason", rec.Reason).
			Msg("pipeline run complete")
	}()

	// Stage 1: data collection across timeframes, with retry. Hard gate.
	timeframes := req.Timeframes
	if len(timeframes) == 0 {
		timeframes = o.cfg.Timeframes
	}
	series := make(map[string]market.Series, len(timeframes))
	var valid []string
	for _, tf := range timeframes {
		res, ok := o.fetchTimeframe(ctx, req.Symbol, tf)
		rec.Reports[tf] = res.Report
		if ok {
			series[tf] = res.ChosenSeries
			valid = append(valid, tf)
		}
	}
	if len(valid) < 2 {
		rec.Reason = "insufficient timeframes"
		o.metrics.RecordStage(string(StageDataCollection), false)
		return rec, nil
	}
	rec.passed(StageDataCollection)
	o.metrics.RecordStage(string(StageDataCollection), true)

	primaryTF := valid[0]
	primary := series[primaryTF]
	ppd := periodsPerDay(primaryTF)

	// Regime classification rides alongside stage 1; its failure only costs
	// the tuned parameters and timeframe suggestions.
	profile, regimeErr := regime.Classify(primary, ppd)
	if o.monitor != nil {
		o.monitor.Record("regime", regimeErr == nil, 0)
	}
	if regimeErr == nil {
		rec.Regime = &profile
		rec.SuggestedTimeframes = regime.Timeframes(profile)
	} else {
		rec.note("regime classification unavailable: " + regimeErr.Error())
		o.noteFallback(rec, "regime")
	}

	// Stage 2: feature extraction. Soft gate; failure leaves an empty bundle.
	if o.deadlineHit(ctx, rec, StageFeatures) {
		return rec, nil
	}
	var bundle FeatureBundle
	analyze := func() error {
		b, err := o.extractor.Analyze(ctx, primary)
		if err != nil {
			return err
		}
		bundle = b
		return nil
	}
	var featErr error
	if o.monitor != nil {
		featErr = o.monitor.Wrap("extractor", analyze)
	} else {
		featErr = analyze()
	}
	if featErr != nil {
		rec.note("feature extraction failed: " + featErr.Error())
		o.noteFallback(rec, "extractor")
		o.metrics.RecordStage(string(StageFeatures), false)
	} else {
		rec.passed(StageFeatures)
		o.metrics.RecordStage(string(StageFeatures), true)
	}

	// Stage 3: signal synthesis over reliability-weighted patterns.
	if o.deadlineHit(ctx, rec, StageSignal) {
		return rec, nil
	}
	patterns := o.weighPatterns(rec, req.Symbol, bundle.Patterns)
	aligned := 0
	for _, tf := range valid {
		if trendDirection(series[tf]) == bundle.Trend {
			aligned++
		}
	}
	sig := synthesize(signalInputs{
		Patterns:          patterns,
		Trend:             bundle.Trend,
		AlignedTimeframes: aligned,
		HighVolume:        bundle.HighVolume,
	})
	rec.Signal = &sig
	rec.Confidence = float64(sig.Confidence)
	rec.passed(StageSignal)
	o.metrics.RecordStage(string(StageSignal), true)

	// Stage 4: scenario simulation. Soft gate.
	if o.deadlineHit(ctx, rec, StageScenario) {
		return rec, nil
	}
	if sc, err := simulateScenarios(primary.Returns(), o.cfg.ScenarioPaths, o.cfg.ScenarioHorizon, o.cfg.ScenarioSeed); err != nil {
		rec.note("scenario simulation unavailable: " + err.Error())
		o.metrics.RecordStage(string(StageScenario), false)
	} else {
		rec.Scenario = sc
		rec.passed(StageScenario)
		o.metrics.RecordStage(string(StageScenario), true)
	}

	// Stage 5: risk metrics. Soft gate.
	if o.deadlineHit(ctx, rec, StageRisk) {
		return rec, nil
	}
	if risk, err := computeRisk(primary, ppd); err != nil {
		rec.note("risk metrics unavailable: " + err.Error())
		o.metrics.RecordStage(string(StageRisk), false)
	} else {
		rec.Risk = risk
		rec.passed(StageRisk)
		o.metrics.RecordStage(string(StageRisk), true)
	}

	// Stage 6: final validation. Hard gate.
	if o.deadlineHit(ctx, rec, StageValidation) {
		return rec, nil
	}
	system := health.StatusUnknown
	if o.monitor != nil {
		system = o.monitor.SystemStatus()
	}
	if rec.Scenario == nil || rec.Risk == nil {
		rec.note("risk-reward check skipped: metrics unavailable")
	}
	if err := validateRecommendation(rec, o.cfg, primary.Age(o.clock.Now()), system); err != nil {
		rec.Reason = err.Error()
		o.metrics.RecordStage(string(StageValidation), false)
		return rec, nil
	}
	rec.passed(StageValidation)
	o.metrics.RecordStage(string(StageValidation), true)

	// Stage 7: sizing. The directional call stands even when sizing cannot.
	if rec.Signal.Direction == market.DirLong {
		rec.Action = ActionLong
	} else {
		rec.Action = ActionShort
	}
	atrParams := regime.Adjust("atr_breakout", profile)
	if sizing, err := positionSize(primary, req.Equity, rec.Signal.Direction, atrParams, o.cfg); err != nil {
		rec.note("sizing skipped: " + err.Error())
		o.metrics.RecordStage(string(StageSizing), false)
	} else {
		rec.Sizing = sizing
		rec.passed(StageSizing)
		o.metrics.RecordStage(string(StageSizing), true)
	}
	return rec, nil
}

// fetchTimeframe retries a timeframe fetch with exponential backoff. A fetch
// is valid only when a series was chosen and sources were sufficient.
func (o *Orchestrator) fetchTimeframe(ctx context.Context, symbol, tf string) (aggregator.Result, bool) {
	var last aggregator.Result
	for attempt := 1; attempt <= o.cfg.Retry.MaxAttempts; attempt++ {
		res, err := o.provider.FetchAndValidate(ctx, symbol, tf, o.cfg.CandleLimit)
		last = res
		if err == nil && len(res.ChosenSeries) > 0 && res.Report.Status != aggregator.StatusInsufficientSources {
			return res, true
		}
		if err != nil {
			log.Warn().Str("symbol", symbol).Str("timeframe", tf).
				Int("attempt", attempt).Err(err).Msg("timeframe fetch failed")
		}
		if attempt < o.cfg.Retry.MaxAttempts {
			if serr := o.clock.Sleep(ctx, o.cfg.Retry.Delay(attempt)); serr != nil {
				return last, false
			}
		}
	}
	return last, false
}

// weighPatterns drops patterns from unreliable indicators and scales the rest
// by learned accuracy, with 0.5 as the neutral pivot.
func (o *Orchestrator) weighPatterns(rec *Recommendation, symbol string, patterns []PatternSignal) []PatternSignal {
	if o.tracker == nil {
		return patterns
	}
	unreliable := make(map[string]bool)
	for _, id := range o.tracker.DetectUnreliable(o.cfg.UnreliableBelow) {
		unreliable[id] = true
	}
	out := make([]PatternSignal, 0, len(patterns))
	for _, p := range patterns {
		if p.Indicator == "" {
			out = append(out, p)
			continue
		}
		if unreliable[p.Indicator] {
			rec.note("dropped signal from unreliable indicator " + p.Indicator)
			continue
		}
		p.Confidence *= o.tracker.GetAccuracy(p.Indicator, symbol) / 0.5
		out = append(out, p)
	}
	return out
}

func (o *Orchestrator) deadlineHit(ctx context.Context, rec *Recommendation, next Stage) bool {
	if ctx.Err() == nil {
		return false
	}
	rec.note("deadline reached before " + string(next) + "; returning partial result")
	return true
}

func (o *Orchestrator) noteFallback(rec *Recommendation, component string) {
	if o.monitor == nil {
		return
	}
	if action, ok := o.monitor.Fallback(component); ok {
		rec.note("fallback: " + action)
	}
}

// periodsPerDay converts a timeframe label into candles per day, defaulting to
// hourly when the label cannot be parsed.
func periodsPerDay(tf string) float64 {
	d, err := aggregator.TimeframeDuration(tf)
	if err != nil || d <= 0 {
		return 24
	}
	return float64(24*time.Hour) / float64(d)
}
