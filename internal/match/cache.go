package match

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/zfogg/soundmark/internal/cache"
)

// ResultCache memoizes Query results keyed by the query clip's own
// landmark set. A repeated lookup of the same clip against an
// unchanged index is a cache hit.
type ResultCache struct {
	rc  *cache.RedisClient
	ttl time.Duration
}

// NewResultCache wraps an already-connected Redis client. ttl of zero
// defaults to 10 minutes.
func NewResultCache(rc *cache.RedisClient, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResultCache{rc: rc, ttl: ttl}
}

// Key derives a cache key from the sorted (key, time) pairs of a query
// clip plus topN, so two identical clips queried with different topN
// don't collide.
func Key(landmarks []QueryLandmark, topN int) string {
	sorted := make([]QueryLandmark, len(landmarks))
	copy(sorted, landmarks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Key != sorted[j].Key {
			return sorted[i].Key < sorted[j].Key
		}
		return sorted[i].Time < sorted[j].Time
	})

	h := fnv.New64a()
	for _, lm := range sorted {
		fmt.Fprintf(h, "%d:%d;", lm.Key, lm.Time)
	}
	return fmt.Sprintf("soundmark:query:%d:%x", topN, h.Sum64())
}

// Get returns a cached result set, cache.ErrMiss on miss.
func (c *ResultCache) Get(ctx context.Context, key string) ([]Hit, error) {
	raw, err := c.rc.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var hits []Hit
	if err := json.Unmarshal([]byte(raw), &hits); err != nil {
		return nil, fmt.Errorf("match: decode cached result: %w", err)
	}
	return hits, nil
}

// Set stores a result set under key with the cache's configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, hits []Hit) error {
	data, err := json.Marshal(hits)
	if err != nil {
		return fmt.Errorf("match: encode result for cache: %w", err)
	}
	return c.rc.SetEx(ctx, key, string(data), c.ttl)
}
