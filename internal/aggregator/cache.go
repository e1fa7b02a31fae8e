package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/marketvet/marketvet/internal/market"
	"github.com/marketvet/marketvet/internal/metrics"
)

// SeriesCache is a TTL cache for fetched series: an in-memory tier always,
// plus an optional Redis tier shared across restarts. Cache hits bypass the
// rate limiter and circuit breaker entirely.
type SeriesCache struct {
	ttl     time.Duration
	rdb     redis.Cmdable
	metrics *metrics.Collector

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	series    market.Series
	expiresAt time.Time
}

// NewSeriesCache builds a cache; rdb may be nil to run memory-only.
func NewSeriesCache(ttl time.Duration, rdb redis.Cmdable, mc *metrics.Collector) *SeriesCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SeriesCache{
		ttl:     ttl,
		rdb:     rdb,
		metrics: mc,
		entries: make(map[string]cacheEntry),
	}
}

// CacheKey identifies one (source, symbol, timeframe, limit) fetch.
func CacheKey(source, symbol, timeframe string, limit int) string {
	return fmt.Sprintf("marketvet:series:%s:%s:%s:%d", source, symbol, timeframe, limit)
}

// Get checks the memory tier, then Redis. Redis hits repopulate memory.
func (c *SeriesCache) Get(ctx context.Context, key string) (market.Series, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		c.metrics.RecordCacheLookup("memory", true)
		return entry.series, true
	}
	c.metrics.RecordCacheLookup("memory", false)

	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("redis cache read failed")
		}
		c.metrics.RecordCacheLookup("redis", false)
		return nil, false
	}
	var series market.Series
	if err := json.Unmarshal(raw, &series); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("corrupt redis cache entry")
		c.metrics.RecordCacheLookup("redis", false)
		return nil, false
	}
	c.metrics.RecordCacheLookup("redis", true)

	c.mu.Lock()
	c.entries[key] = cacheEntry{series: series, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return series, true
}

// Put stores in both tiers. Redis write failures are logged, not fatal.
func (c *SeriesCache) Put(ctx context.Context, key string, series market.Series) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{series: series, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(series)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("redis cache write failed")
	}
}

// Purge drops expired memory entries. Called opportunistically by the owner.
func (c *SeriesCache) Purge() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
