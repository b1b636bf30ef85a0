// Package dfcache memoizes a finished docfreq.DF table (plus its
// PrunedSet) in Redis, keyed by a content hash of both corpora and the
// parameters that affect DF computation. It mirrors the teacher's
// internal/searcher/cache.QueryCache shape: Get/Set backed by go-redis,
// a singleflight.Group collapsing concurrent callers onto one compute,
// and hit/miss counters. spec.md is silent on caching DF across runs over
// the same corpus pair — this is a supplemental feature, opt-in via
// --cache-addr, off by default so the core pipeline behaves exactly as
// specified when unset.
package dfcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bitextor/docalign/internal/docfreq"
	"github.com/bitextor/docalign/pkg/redis"
	"github.com/bitextor/docalign/pkg/resilience"
)

// redisOpTimeout bounds a single Redis round trip, so a hung connection
// fails into the next retry attempt rather than stalling the whole call.
const redisOpTimeout = 2 * time.Second

// entry is the gob-encoded payload stored per cache key.
type entry struct {
	DF     map[uint64]uint64
	Pruned []byte
}

// Counters receives hit/miss events for pkg/metrics to surface as
// Prometheus counters; a nil Counters discards events.
type Counters interface {
	CacheHit()
	CacheMiss()
}

// Cache memoizes DF tables in Redis.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	group    singleflight.Group
	counters Counters
	logger   *slog.Logger
}

// New creates a Cache backed by a Redis instance at addr.
func New(addr string, ttl time.Duration, counters Counters) (*Cache, error) {
	client, err := redis.NewClient(addr)
	if err != nil {
		return nil, err
	}
	return &Cache{client: client, ttl: ttl, counters: counters, logger: slog.Default().With("component", "dfcache")}, nil
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// GetOrCompute returns the DF/PrunedSet cached under key, or calls compute
// and caches its result if there was no entry. Concurrent callers with the
// same key collapse onto a single compute call via singleflight. A cache
// backend error degrades to a miss (logged, never fatal) per
// SPEC_FULL.md §7: the core pipeline's correctness never depends on the
// cache being reachable.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func() (*docfreq.DF, *docfreq.PrunedSet, error)) (*docfreq.DF, *docfreq.PrunedSet, error) {
	if df, pruned, ok := c.get(ctx, key); ok {
		c.recordHit()
		return df, pruned, nil
	}
	c.recordMiss()

	v, err, _ := c.group.Do(key, func() (any, error) {
		df, pruned, err := compute()
		if err != nil {
			return nil, err
		}
		if setErr := c.set(ctx, key, df, pruned); setErr != nil {
			c.logger.Warn("dfcache: failed to store entry, continuing without caching", "error", setErr)
		}
		return [2]any{df, pruned}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	pair := v.([2]any)
	return pair[0].(*docfreq.DF), pair[1].(*docfreq.PrunedSet), nil
}

func (c *Cache) get(ctx context.Context, key string) (*docfreq.DF, *docfreq.PrunedSet, bool) {
	var raw string
	err := resilience.Retry(ctx, "dfcache.get", resilience.RetryConfig{MaxAttempts: 2}, func() error {
		return resilience.WithTimeout(ctx, redisOpTimeout, "dfcache.get", func(opCtx context.Context) error {
			var getErr error
			raw, getErr = c.client.Get(opCtx, key)
			return getErr
		})
	})
	if err != nil {
		if !redis.IsNilError(err) {
			c.logger.Warn("dfcache: get failed, falling back to compute", "error", err)
		}
		return nil, nil, false
	}

	var e entry
	if err := gob.NewDecoder(bytes.NewReader([]byte(raw))).Decode(&e); err != nil {
		c.logger.Warn("dfcache: corrupt entry, falling back to compute", "error", err)
		return nil, nil, false
	}

	df := docfreq.NewDF()
	df.LoadSnapshot(e.DF)
	pruned := docfreq.NewPrunedSet()
	if len(e.Pruned) > 0 {
		if err := pruned.UnmarshalBinary(e.Pruned); err != nil {
			c.logger.Warn("dfcache: corrupt pruned set, falling back to compute", "error", err)
			return nil, nil, false
		}
	}
	return df, pruned, true
}

func (c *Cache) set(ctx context.Context, key string, df *docfreq.DF, pruned *docfreq.PrunedSet) error {
	prunedBytes, err := pruned.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshaling pruned set: %w", err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry{DF: df.Snapshot(), Pruned: prunedBytes}); err != nil {
		return fmt.Errorf("encoding df cache entry: %w", err)
	}
	return resilience.Retry(ctx, "dfcache.set", resilience.RetryConfig{MaxAttempts: 2}, func() error {
		return resilience.WithTimeout(ctx, redisOpTimeout, "dfcache.set", func(opCtx context.Context) error {
			return c.client.Set(opCtx, key, buf.String(), c.ttl)
		})
	})
}

func (c *Cache) recordHit() {
	if c.counters != nil {
		c.counters.CacheHit()
	}
}

func (c *Cache) recordMiss() {
	if c.counters != nil {
		c.counters.CacheMiss()
	}
}
