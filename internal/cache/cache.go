// Package cache provides an in-process TTL cache with single-flight refresh.
//
// Entries expire lazily: expiry is checked on access, exactly at insertion
// time plus TTL. Expired entries are not returned by Get but are retained as
// last-known values until overwritten, so callers can fall back to them when
// a refresh fails.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches a fresh value for a key from the upstream source
type LoadFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiry
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Stats holds cache counters
type Stats struct {
	Name       string  `json:"name"`
	Entries    int     `json:"entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Loads      int64   `json:"loads"`
	LoadErrors int64   `json:"loadErrors"`
	HitRate    float64 `json:"hitRate"`
}

// Cache is a generic TTL key/value store
type Cache[V any] struct {
	name string
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[V]
	group   singleflight.Group

	hits       atomic.Int64
	misses     atomic.Int64
	loads      atomic.Int64
	loadErrors atomic.Int64
}

// Option configures a Cache
type Option func(*options)

type options struct {
	name string
	now  func() time.Time
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithName labels the cache in stats and logs
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// New creates an empty cache
func New[V any](opts ...Option) *Cache[V] {
	o := options{name: "cache", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		name:    o.name,
		now:     o.now,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the value for key if present and not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(c.now()) {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Stale returns the last stored value for key, ignoring expiry
func (c *Cache[V]) Stale(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return e.value, ok
}

// Set stores value under key. A non-positive ttl never expires.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// GetOrLoad returns the cached value for key, or loads it on a miss.
// Concurrent misses on the same key share a single call to load.
// On load failure the error is returned and the cache is left unchanged.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load LoadFunc[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	// The flight outlives any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A flight that finished between our miss and this call already refreshed the key.
		if v, ok := c.peek(key); ok {
			return v, nil
		}

		c.loads.Add(1)
		v, err := load(flightCtx)
		if err != nil {
			c.loadErrors.Add(1)
			return nil, err
		}

		c.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	return result.(V), nil
}

// peek is Get without touching the hit/miss counters
func (c *Cache[V]) peek(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Len returns the number of stored entries, including expired ones
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters
func (c *Cache[V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return Stats{
		Name:       c.name,
		Entries:    c.Len(),
		Hits:       hits,
		Misses:     misses,
		Loads:      c.loads.Load(),
		LoadErrors: c.loadErrors.Load(),
		HitRate:    hitRate,
	}
}
