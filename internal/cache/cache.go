// SPDX-License-Identifier: MIT

// Package cache holds rendered catalog pages so the API can serve them
// without touching disk. Backends: in-memory with a TTL janitor, Redis, and
// a no-op for deployments that disable caching.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/irfnrdh/tensorflow-datasets/internal/metrics"
)

// Cache stores rendered pages keyed by dataset name.
type Cache interface {
	// Get retrieves a page. Returns false if not found or expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a page with the specified TTL.
	Set(ctx context.Context, key string, page []byte, ttl time.Duration)
	// Delete removes one page.
	Delete(ctx context.Context, key string)
	// Clear removes all pages. Called after a refresh rewrites the catalog.
	Clear(ctx context.Context)
	// Stats returns hit/miss counters.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

// PageKey is the cache key of a dataset's rendered page.
func PageKey(dataset string) string {
	return "page:" + dataset
}

// New selects a backend by name. A Redis backend that cannot connect falls
// back to memory so a missing Redis never takes the daemon down.
func New(backend, redisAddr string, logger zerolog.Logger) Cache {
	switch backend {
	case "redis":
		c, err := NewRedis(RedisConfig{Addr: redisAddr}, logger)
		if err != nil {
			logger.Warn().Err(err).Str("addr", redisAddr).
				Msg("redis unavailable, falling back to in-memory page cache")
			return NewMemory(time.Minute)
		}
		return c
	case "none":
		return NewNoOp()
	default:
		return NewMemory(time.Minute)
	}
}

type entry struct {
	page       []byte
	expiration time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiration)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	janitor *janitor
}

// NewMemory creates an in-memory page cache. cleanupInterval determines how
// often expired pages are evicted; zero disables the janitor.
func NewMemory(cleanupInterval time.Duration) Cache {
	c := &memoryCache{entries: make(map[string]*entry)}
	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.expired() {
		c.stats.Misses++
		metrics.IncCacheOperation("memory", "miss")
		return nil, false
	}
	c.stats.Hits++
	metrics.IncCacheOperation("memory", "hit")
	return e.page, true
}

func (c *memoryCache) Set(_ context.Context, key string, page []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{page: page, expiration: time.Now().Add(ttl)}
	c.stats.Sets++
	metrics.IncCacheOperation("memory", "set")
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if e.expired() {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// Stop stops the janitor goroutine.
func (c *memoryCache) Stop() {
	if c.janitor != nil {
		c.janitor.stop <- struct{}{}
	}
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

type noOpCache struct{}

// NewNoOp creates a cache that stores nothing.
func NewNoOp() Cache {
	return &noOpCache{}
}

func (*noOpCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (*noOpCache) Set(context.Context, string, []byte, time.Duration) {}
func (*noOpCache) Delete(context.Context, string)                     {}
func (*noOpCache) Clear(context.Context)                              {}
func (*noOpCache) Stats() Stats                                       { return Stats{} }
