// Package cache memoizes lookups that are read far more often than they
// change, such as the user row behind every authenticated request.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the value for key on a miss. Errors are returned to every
// waiting caller and never stored.
type Loader[K ~string, V any] func(ctx context.Context, key K) (V, error)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache holds loaded values for a fixed TTL. Concurrent misses for the same
// key share one Loader call. Expired items are dropped when a store finds the
// cache at capacity, so there is no background sweeper to stop.
type Cache[K ~string, V any] struct {
	mu       sync.Mutex
	items    map[K]item[V]
	ttl      time.Duration
	capacity int
	load     Loader[K, V]
	group    singleflight.Group
	now      func() time.Time
}

// New builds a cache of at most capacity items that live for ttl.
func New[K ~string, V any](ttl time.Duration, capacity int, load Loader[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		items:    make(map[K]item[V]),
		ttl:      ttl,
		capacity: max(capacity, 1),
		load:     load,
		now:      time.Now,
	}
}

// Get returns the cached value for key or loads it. The load runs detached
// from ctx's cancellation: other callers may be waiting on it.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(string(key), func() (any, error) {
		v, err := c.load(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (c *Cache[K, V]) lookup(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(it.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *Cache[K, V]) store(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.capacity {
		for k, it := range c.items {
			if !now.Before(it.expiresAt) {
				delete(c.items, k)
			}
		}
		// Still full of live items: make room with an arbitrary one.
		for k := range c.items {
			if len(c.items) < c.capacity {
				break
			}
			delete(c.items, k)
		}
	}
	c.items[key] = item[V]{value: v, expiresAt: now.Add(c.ttl)}
}
