package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/market"
	"github.com/marketvet/marketvet/internal/metrics"
)

// Result is the full outcome of one FetchAndValidate call.
type Result struct {
	ChosenSeries market.Series    `json:"-"`
	ChosenSource string           `json:"chosen_source"`
	Report       ValidationReport `json:"report"`
	PerSource    []SourceResult   `json:"per_source"`
}

// Aggregator coordinates parallel per-source fetches behind rate limiters and
// circuit breakers, then cross-validates the results.
type Aggregator struct {
	cfg      Config
	sources  []Source
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter
	cache    *SeriesCache
	monitor  *health.Monitor
	metrics  *metrics.Collector
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithCache attaches a series cache; cache hits skip limiter and breaker.
func WithCache(c *SeriesCache) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithMonitor records per-source and aggregate health observations.
func WithMonitor(m *health.Monitor) Option {
	return func(a *Aggregator) { a.monitor = m }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(mc *metrics.Collector) Option {
	return func(a *Aggregator) { a.metrics = mc }
}

// New builds an aggregator over the configured sources.
func New(cfg Config, sources []Source, opts ...Option) *Aggregator {
	def := DefaultConfig()
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = def.MaxConcurrentFetches
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = def.BreakerFailureThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	a := &Aggregator{
		cfg:      cfg,
		sources:  sources,
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(sources)),
		limiters: make(map[string]*rate.Limiter, len(sources)),
	}
	for _, src := range sources {
		id := src.ID()
		threshold := cfg.BreakerFailureThreshold
		a.breakers[id] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    id,
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("source", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("source breaker state change")
			},
		})
		a.limiters[id] = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sources returns the configured source IDs.
func (a *Aggregator) Sources() []string {
	ids := make([]string, len(a.sources))
	for i, s := range a.sources {
		ids[i] = s.ID()
	}
	return ids
}

// FetchAndValidate fetches the series from every source, cross-validates, and
// selects a winner. Per-source failures never abort the call; the only error
// is a misconfigured (empty) source set.
func (a *Aggregator) FetchAndValidate(ctx context.Context, symbol, timeframe string, limit int) (Result, error) {
	if len(a.sources) == 0 {
		return Result{}, errors.New("no sources configured")
	}

	results := make([]SourceResult, len(a.sources))
	sem := make(chan struct{}, a.cfg.MaxConcurrentFetches)
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = a.fetchOne(ctx, src, symbol, timeframe, limit)
		}(i, src)
	}
	wg.Wait()

	report := buildReport(results, a.metrics)
	res := Result{Report: report, PerSource: results}
	if chosen, ok := a.cfg.selectBest(results, &res.Report); ok {
		res.ChosenSeries = chosen.Series
		res.ChosenSource = chosen.SourceID
	}

	if a.monitor != nil {
		a.monitor.Record("aggregator", res.Report.Status != StatusInsufficientSources, 0)
	}
	log.Debug().Str("symbol", symbol).Str("timeframe", timeframe).
		Str("status", string(res.Report.Status)).
		Float64("confidence", res.Report.Confidence).
		Int("anomalies", len(res.Report.Anomalies)).
		Str("chosen", res.ChosenSource).
		Msg("aggregation complete")
	return res, nil
}

// fetchOne runs cache -> rate limiter -> breaker -> fetch -> sanity checks
// for a single source.
func (a *Aggregator) fetchOne(ctx context.Context, src Source, symbol, timeframe string, limit int) SourceResult {
	id := src.ID()
	key := CacheKey(id, symbol, timeframe, limit)

	if a.cache != nil {
		if series, ok := a.cache.Get(ctx, key); ok {
			// A hit is still a successful serve; without this the source
			// would sit at UNKNOWN while the cache is warm.
			if a.monitor != nil {
				a.monitor.Record("source:"+id, true, 0)
			}
			return SourceResult{SourceID: id, Series: series, OK: true}
		}
	}

	if !a.limiters[id].Allow() {
		return a.failed(id, 0, fmt.Errorf("%w: rate limited", ErrSourceUnavailable))
	}

	start := time.Now()
	raw, err := a.breakers[id].Execute(func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()
		series, err := src.Fetch(fctx, symbol, timeframe, limit)
		if err != nil {
			return nil, err
		}
		if err := market.Validate(series); err != nil {
			return nil, fmt.Errorf("sanity check: %w", err)
		}
		return series, nil
	})
	latency := time.Since(start)

	if a.monitor != nil {
		a.monitor.Record("source:"+id, err == nil, latency)
	}
	a.metrics.RecordFetch(id, err == nil, latency)

	if err != nil {
		return a.failed(id, latency.Milliseconds(), fmt.Errorf("%w: %v", ErrSourceUnavailable, err))
	}

	series := raw.(market.Series)
	if a.cache != nil {
		a.cache.Put(ctx, key, series)
	}
	return SourceResult{
		SourceID:  id,
		Series:    series,
		OK:        true,
		LatencyMS: latency.Milliseconds(),
	}
}

func (a *Aggregator) failed(id string, latencyMS int64, err error) SourceResult {
	log.Debug().Str("source", id).Err(err).Msg("source fetch failed")
	return SourceResult{SourceID: id, Err: err.Error(), LatencyMS: latencyMS}
}
