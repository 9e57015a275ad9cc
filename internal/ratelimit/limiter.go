// Package ratelimit provides per-client admission control, evaluated before
// any store call. Each client key owns a token bucket with capacity C
// (burst) refilled at R tokens per second. Idle buckets are evicted after a
// TTL so the state map stays bounded.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tallyd/tallyd/internal/config"
)

// Limiter admits or rejects requests per client key. Safe for concurrent
// use; the bucket map and eviction share one mutex, so a sweep can never
// race an Allow on the same key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate          rate.Limit
	burst         int
	idleTTL       time.Duration
	sweepInterval time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter from configuration.
func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		buckets:       make(map[string]*bucket),
		rate:          rate.Limit(cfg.Rate),
		burst:         cfg.Burst,
		idleTTL:       cfg.IdleTTL,
		sweepInterval: cfg.SweepInterval,
	}
}

// Allow reports whether the request from the given key is admitted now.
// Buckets are created lazily on first sight of a key; rate.Limiter tracks
// refill on the monotonic clock, so wall-clock adjustments cannot skew the
// window.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	return b.lim.Allow()
}

// Len returns the number of tracked client keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep evicts buckets idle longer than the TTL.
func (l *Limiter) sweep() {
	cutoff := time.Now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Run sweeps idle buckets periodically until the context is canceled.
// Intended to run as a single background goroutine.
func (l *Limiter) Run(ctx context.Context) {
	if l.sweepInterval <= 0 {
		return
	}

	t := time.NewTicker(l.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.sweep()
		}
	}
}
