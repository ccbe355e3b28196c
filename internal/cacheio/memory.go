// Package cacheio provides CachePort implementations: an in-memory TTL map
// for local development and tests, and a Redis-backed implementation for
// production.
package cacheio

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a TTL-bounded in-memory CachePort implementation. A
// background goroutine periodically sweeps expired entries so that
// unbounded growth doesn't depend on callers re-reading every key.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	stop    chan struct{}
}

// NewMemoryCache creates a MemoryCache and starts its background sweeper,
// running every sweepInterval. A zero or negative interval defaults to one
// second.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Second
	}
	c := &MemoryCache{
		entries: make(map[string]memEntry),
		stop:    make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (c *MemoryCache) SetEX(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	c.entries[key] = memEntry{value: cp, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	e.expiresAt = time.Now().Add(ttl)
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return false, nil
	}
	return true, nil
}

// Stop terminates the background sweep goroutine.
func (c *MemoryCache) Stop() {
	close(c.stop)
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
