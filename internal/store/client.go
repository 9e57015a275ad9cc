// Package store wraps the external redis counter store behind a typed
// client. It owns connection pooling, per-call timeouts, error
// classification, and the retry policy: idempotent reads retry freely on
// transient failure, increments are resent only when the failure provably
// happened before the store applied the command. An increment whose outcome
// is unknown surfaces as ambiguous and is never silently retried, because a
// resend could double-count.
package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tallyd/tallyd/internal/config"
	apperrors "github.com/tallyd/tallyd/internal/errors"
	"github.com/tallyd/tallyd/internal/observability"
)

// Client is a typed wrapper around the redis counter store. All methods are
// safe for concurrent use; the underlying pool is bounded by
// store.pool_size and every call holds a connection only for the duration
// of one round trip.
type Client struct {
	rdb        *redis.Client
	key        string
	retryMax   int
	backoff    time.Duration
	backoffCap time.Duration
}

// New creates a store client from configuration. go-redis internal retries
// are disabled so the resend policy lives entirely in this package.
func New(cfg config.StoreConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   -1,
	})

	return &Client{
		rdb:        rdb,
		key:        cfg.Key,
		retryMax:   cfg.RetryMax,
		backoff:    cfg.RetryBackoff,
		backoffCap: cfg.RetryBackoffCap,
	}
}

// NewWithRedis creates a store client around an existing redis client.
// Used by tests.
func NewWithRedis(rdb *redis.Client, key string, retryMax int, backoff, backoffCap time.Duration) *Client {
	return &Client{
		rdb:        rdb,
		key:        key,
		retryMax:   retryMax,
		backoff:    backoff,
		backoffCap: backoffCap,
	}
}

// Increment atomically increments the counter and returns the
// post-increment value as applied by the store.
func (c *Client) Increment(ctx context.Context) (uint64, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		n, err := c.rdb.Incr(ctx, c.key).Result()
		observability.RecordStoreCall("incr", time.Since(start))

		if err == nil {
			return uint64(n), nil
		}

		kind, preApply := classify(err)
		switch kind {
		case failureUnauthorized:
			return 0, apperrors.WrapStoreUnauthorized(err, "store rejected credentials")
		case failureUnavailable:
			if !preApply {
				// The command may have been applied. Resending could
				// double-count, so surface the ambiguity instead.
				return 0, apperrors.WrapStoreAmbiguous(err, "increment outcome unknown")
			}
			if attempt >= c.retryMax {
				return 0, apperrors.WrapStoreUnavailable(err, "store unavailable")
			}
			if err := c.sleep(ctx, attempt); err != nil {
				return 0, apperrors.WrapStoreUnavailable(err, "store unavailable")
			}
			observability.Logger().Debug("retrying increment after pre-apply failure",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		default:
			return 0, apperrors.WrapStoreError(err, "store error")
		}
	}
}

// Read returns the current counter value. A key absent from the store reads
// as zero. Reads are idempotent and retry on any transient failure up to the
// configured bound.
func (c *Client) Read(ctx context.Context) (uint64, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		val, err := c.rdb.Get(ctx, c.key).Uint64()
		observability.RecordStoreCall("get", time.Since(start))

		if err == nil {
			return val, nil
		}
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}

		kind, _ := classify(err)
		switch kind {
		case failureUnauthorized:
			return 0, apperrors.WrapStoreUnauthorized(err, "store rejected credentials")
		case failureUnavailable:
			if attempt >= c.retryMax {
				return 0, apperrors.WrapStoreUnavailable(err, "store unavailable")
			}
			if err := c.sleep(ctx, attempt); err != nil {
				return 0, apperrors.WrapStoreUnavailable(err, "store unavailable")
			}
			observability.Logger().Debug("retrying read after transient failure",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		default:
			return 0, apperrors.WrapStoreError(err, "store error")
		}
	}
}

// Ping verifies store connectivity. Used by the health coordinator.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperrors.WrapStoreUnavailable(err, "store unreachable")
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// sleep waits one exponential backoff step with jitter, aborting early when
// the request context expires.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	d := c.backoff << attempt
	if d > c.backoffCap || d <= 0 {
		d = c.backoffCap
	}
	// Full jitter over the upper half keeps replicas from retrying in lockstep.
	d = d/2 + rand.N(d/2+1)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
