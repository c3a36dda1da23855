package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ritzau/sbom-resolver/pkg/logging"
	"github.com/ritzau/sbom-resolver/pkg/metrics"
)

// Defaults applied when Options leaves a field at zero
const (
	DefaultTTL      = 300 * time.Second
	DefaultCapacity = 1000
)

// Options configures a cache instance
type Options struct {
	Capacity int
	TTL      time.Duration
	Metrics  *metrics.Metrics
}

// Cache memoizes computed values by key with TTL expiry and LRU eviction.
// Concurrent GetOrCompute calls for the same key share one computation.
// Errors are returned to every waiter of that computation but never stored.
type Cache[V any] struct {
	lru     *expirable.LRU[string, V]
	group   singleflight.Group
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New creates a cache. Each caller owns its instance; there is no shared global cache.
func New[V any](opts Options) *Cache[V] {
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	c := &Cache[V]{
		metrics: opts.Metrics,
		log:     logging.New("cache"),
	}
	c.lru = expirable.NewLRU[string, V](opts.Capacity, func(key string, _ V) {
		c.metrics.IncEviction()
	}, opts.TTL)
	return c
}

// Get returns a stored, unexpired value
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// GetOrCompute returns the cached value for key or runs compute once for all
// concurrent callers. The computation runs under the ctx of the caller that started
// it. A caller whose ctx ends stops waiting and gets ctx.Err(); if the computation
// was cut short by its starter's cancellation, surviving callers start a new one.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.lru.Get(key); ok {
		c.metrics.IncCache(metrics.CacheHit)
		return v, nil
	}

	for {
		leader := false
		ch := c.group.DoChan(key, func() (interface{}, error) {
			leader = true
			// A value may have landed between the miss and acquiring the flight
			if v, ok := c.lru.Get(key); ok {
				return v, nil
			}
			v, err := compute(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, &abandonedError{err: err}
				}
				return nil, err
			}
			c.lru.Add(key, v)
			return v, nil
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			switch {
			case leader:
				c.metrics.IncCache(metrics.CacheMiss)
			case res.Shared:
				c.metrics.IncCache(metrics.CacheShared)
			}
			if res.Err != nil {
				var abandoned *abandonedError
				if errors.As(res.Err, &abandoned) {
					if !leader && ctx.Err() == nil {
						// The starter gave up; this caller still wants the value
						c.log.Log(ctx, logging.LevelTrace, "retrying abandoned computation", "key", key)
						continue
					}
					return zero, abandoned.err
				}
				return zero, res.Err
			}
			return res.Val.(V), nil
		}
	}
}

// Purge drops every entry
func (c *Cache[V]) Purge() {
	c.lru.Purge()
	c.log.Info("cache purged")
}

// Len returns the number of stored entries, expired ones included until they are swept
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// abandonedError marks a computation that failed because its starter's ctx ended
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Unwrap() error { return e.err }
