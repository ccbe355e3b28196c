// Package ratelimit implements a per-key token-bucket limiter, used to
// bound request rate ahead of the router (e.g. per API key or per
// session) independent of the router's own budget and breaker logic.
package ratelimit

import (
	"container/list"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Config tunes the limiter.
type Config struct {
	// RatePerSecond is the steady-state token refill rate.
	RatePerSecond float64
	// Burst is the maximum number of tokens a bucket can hold.
	Burst float64
	// MaxKeys bounds the number of distinct keys tracked; the least
	// recently used key is evicted once this is exceeded.
	MaxKeys int
}

// Option configures a Limiter at construction time.
type Option func(*Limiter)

// WithRejectedCounter increments a counter every time Allow rejects a
// key due to an empty bucket.
func WithRejectedCounter(c prometheus.Counter) Option {
	return func(l *Limiter) { l.rejected = c }
}

// Limiter is a per-key token bucket rate limiter. Keys are tracked in
// an LRU list bounded by Config.MaxKeys so an unbounded set of callers
// cannot grow the limiter's memory without bound.
type Limiter struct {
	cfg      Config
	rejected prometheus.Counter

	mu      sync.Mutex
	buckets map[string]*list.Element
	order   *list.List // front = most recently used
}

type entry struct {
	key    string
	bucket *bucket
}

// New constructs a Limiter. A zero Burst defaults to RatePerSecond
// (i.e. at most one second's worth of built-up tokens); a zero MaxKeys
// defaults to 10000.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSecond
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a single token is available for key, consuming
// it if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.buckets[key]
	var b *bucket
	now := time.Now()
	if ok {
		l.order.MoveToFront(el)
		b = el.Value.(*entry).bucket
	} else {
		b = &bucket{tokens: l.cfg.Burst, lastRefill: now}
		el = l.order.PushFront(&entry{key: key, bucket: b})
		l.buckets[key] = el
		l.evictIfNeeded()
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * l.cfg.RatePerSecond
	if b.tokens > l.cfg.Burst {
		b.tokens = l.cfg.Burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		if l.rejected != nil {
			l.rejected.Inc()
		}
		return false
	}
	b.tokens--
	return true
}

// evictIfNeeded must be called with l.mu held.
func (l *Limiter) evictIfNeeded() {
	for len(l.buckets) > l.cfg.MaxKeys {
		oldest := l.order.Back()
		if oldest == nil {
			return
		}
		l.order.Remove(oldest)
		delete(l.buckets, oldest.Value.(*entry).key)
	}
}

// TrackedKeys reports how many distinct keys currently have state.
func (l *Limiter) TrackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
