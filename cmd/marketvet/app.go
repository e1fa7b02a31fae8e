package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/marketvet/marketvet/internal/accuracy"
	"github.com/marketvet/marketvet/internal/aggregator"
	"github.com/marketvet/marketvet/internal/config"
	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/indicator"
	"github.com/marketvet/marketvet/internal/metrics"
	"github.com/marketvet/marketvet/internal/persistence"
	pgstore "github.com/marketvet/marketvet/internal/persistence/postgres"
	"github.com/marketvet/marketvet/internal/pipeline"
)

// app is the fully wired component graph shared by all subcommands.
type app struct {
	cfg          config.Config
	collector    *metrics.Collector
	monitor      *health.Monitor
	tracker      *accuracy.Tracker
	aggregator   *aggregator.Aggregator
	orchestrator *pipeline.Orchestrator

	closers []func() error
}

func buildApp() (*app, error) {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyLogLevel(cfg.Log.Level)

	a := &app{cfg: cfg, collector: metrics.NewCollector()}
	a.monitor = health.NewMonitor(cfg.Health)
	for _, component := range []string{"aggregator", "accuracy", "regime", "extractor"} {
		a.monitor.Register(component)
	}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.tracker, err = accuracy.NewTracker(cfg.Accuracy, store, a.monitor)
	if err != nil {
		return nil, err
	}

	var rdb redis.Cmdable
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		rdb = client
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis series cache enabled")
	}
	cache := aggregator.NewSeriesCache(cfg.Aggregator.CacheTTL, rdb, a.collector)

	sources := make([]aggregator.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src := aggregator.NewSimulatedSource(sc.ID, sc.BasePrice)
		src.Skew = sc.Skew
		sources = append(sources, src)
	}
	a.aggregator = aggregator.New(cfg.Aggregator, sources,
		aggregator.WithCache(cache),
		aggregator.WithMonitor(a.monitor),
		aggregator.WithMetrics(a.collector))

	a.orchestrator = pipeline.New(cfg.Pipeline, a.aggregator, indicator.Extractor{},
		pipeline.WithTracker(a.tracker),
		pipeline.WithMonitor(a.monitor),
		pipeline.WithMetrics(a.collector))
	return a, nil
}

func (a *app) openStore() (accuracy.Store, error) {
	switch a.cfg.Storage.Backend {
	case "postgres":
		store, err := pgstore.Open(a.cfg.Storage.DSN, a.cfg.Storage.Timeout)
		if err != nil {
			return nil, fmt.Errorf("open accuracy store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return persistence.NewFileStore(a.cfg.Storage.Path), nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("shutdown cleanup failed")
		}
	}
}
