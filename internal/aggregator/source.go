// Package aggregator fetches the same series from multiple untrusted sources,
// cross-validates them, scores consensus confidence, and picks a winning
// source for downstream analysis.
package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/marketvet/marketvet/internal/market"
)

// ErrSourceUnavailable marks a per-source failure (timeout, transport error,
// rate limit, open breaker, failed sanity checks). It is recovered locally:
// the source is excluded from that aggregation call.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source is one independent market data provider.
type Source interface {
	ID() string
	Fetch(ctx context.Context, symbol, timeframe string, limit int) (market.Series, error)
}

// SourceResult is the transient per-source outcome of one aggregation call.
type SourceResult struct {
	SourceID  string        `json:"source_id"`
	Series    market.Series `json:"-"`
	OK        bool          `json:"success"`
	Err       string        `json:"error,omitempty"`
	LatencyMS int64         `json:"latency_ms"`
}

// Config tunes fetch behavior and the static source ranking.
type Config struct {
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	MaxConcurrentFetches int           `yaml:"max_concurrent_fetches"`
	// PriorityRanks is the hand-authored static ranking in [0,1] used by
	// best-source selection; unlisted sources rank 0.5.
	PriorityRanks map[string]float64 `yaml:"priority_ranks"`

	RatePerSecond float64 `yaml:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst"`

	BreakerFailureThreshold uint32        `yaml:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `yaml:"breaker_timeout"`

	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns the documented fetch defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:            10 * time.Second,
		MaxConcurrentFetches:    4,
		PriorityRanks:           map[string]float64{},
		RatePerSecond:           5,
		RateBurst:               10,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
		CacheTTL:                30 * time.Second,
	}
}

func (c Config) rank(sourceID string) float64 {
	if r, ok := c.PriorityRanks[sourceID]; ok {
		return r
	}
	return 0.5
}
