// Package metrics exposes Prometheus instrumentation for the decision
// pipeline. All Collector methods are nil-receiver safe so components can run
// uninstrumented in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry; nothing is registered globally.
type Collector struct {
	registry *prometheus.Registry

	fetchTotal      *prometheus.CounterVec
	fetchLatency    *prometheus.HistogramVec
	anomalies       *prometheus.CounterVec
	stageOutcomes   *prometheus.CounterVec
	recommendations *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewCollector builds and registers all pipeline metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketvet_source_fetch_total",
			Help: "Source fetch attempts by source and result",
		}, []string{"source", "result"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketvet_source_fetch_seconds",
			Help:    "Source fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketvet_anomalies_total",
			Help: "Cross-validation anomalies by kind and severity",
		}, []string{"kind", "severity"}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketvet_pipeline_stage_total",
			Help: "Pipeline stage outcomes",
		}, []string{"stage", "result"}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketvet_recommendations_total",
			Help: "Final recommendations by action",
		}, []string{"action"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketvet_series_cache_total",
			Help: "Series cache lookups by tier and result",
		}, []string{"tier", "result"}),
	}
	reg.MustRegister(c.fetchTotal, c.fetchLatency, c.anomalies,
		c.stageOutcomes, c.recommendations, c.cacheLookups)
	return c
}

// RecordFetch counts one source fetch and observes its latency.
func (c *Collector) RecordFetch(source string, ok bool, latency time.Duration) {
	if c == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	c.fetchTotal.WithLabelValues(source, result).Inc()
	c.fetchLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordAnomaly counts one detected anomaly.
func (c *Collector) RecordAnomaly(kind, severity string) {
	if c == nil {
		return
	}
	c.anomalies.WithLabelValues(kind, severity).Inc()
}

// RecordStage counts a stage pass/fail.
func (c *Collector) RecordStage(stage string, ok bool) {
	if c == nil {
		return
	}
	result := "pass"
	if !ok {
		result = "fail"
	}
	c.stageOutcomes.WithLabelValues(stage, result).Inc()
}

// RecordRecommendation counts a terminal recommendation.
func (c *Collector) RecordRecommendation(action string) {
	if c == nil {
		return
	}
	c.recommendations.WithLabelValues(action).Inc()
}

// RecordCacheLookup counts one cache lookup outcome.
func (c *Collector) RecordCacheLookup(tier string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(tier, result).Inc()
}

// Handler serves the private registry for /metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
