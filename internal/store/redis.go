package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantumnexus/journal-engine/internal/model"
)

// StatsCache caches computed AnalyticsPeriod values in Redis. Keys embed
// the store's reconciliation version plus the period bounds, so every
// completed reconciliation naturally invalidates all cached periods without
// explicit deletes; stale keys age out via TTL.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatsCache creates a Redis-backed analytics cache.
func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached analytics for (version, from, to), or false on miss.
// Redis errors are treated as misses; the cache is best-effort.
func (c *StatsCache) Get(ctx context.Context, version int64, from, to time.Time) (*model.AnalyticsPeriod, bool) {
	data, err := c.rdb.Get(ctx, statsKey(version, from, to)).Bytes()
	if err != nil {
		return nil, false
	}
	var stats model.AnalyticsPeriod
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

// Put stores the analytics for (version, from, to). Best-effort.
func (c *StatsCache) Put(ctx context.Context, version int64, from, to time.Time, stats *model.AnalyticsPeriod) {
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, statsKey(version, from, to), data, c.ttl)
}

func statsKey(version int64, from, to time.Time) string {
	return fmt.Sprintf("stats:%d:%d:%d", version, from.Unix(), to.Unix())
}
