package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tallyd/tallyd/internal/config"
	apperrors "github.com/tallyd/tallyd/internal/errors"
	"github.com/tallyd/tallyd/internal/health"
	"github.com/tallyd/tallyd/internal/ratelimit"
	"github.com/tallyd/tallyd/internal/store"
)

type fixture struct {
	service     *Service
	coordinator *health.Coordinator
	mr          *miniredis.Miniredis
}

func newFixture(t *testing.T, burst int, limitReads bool) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	st := store.NewWithRedis(rdb, "counter", 0, time.Millisecond, 10*time.Millisecond)
	limiter := ratelimit.New(config.RateLimitConfig{
		Rate:          0.1, // slow refill so bursts are deterministic
		Burst:         burst,
		IdleTTL:       time.Minute,
		SweepInterval: time.Minute,
	})

	coordinator := health.New(st, config.HealthConfig{
		ProbeInterval: time.Millisecond,
		ProbeTimeout:  100 * time.Millisecond,
		DrainDeadline: time.Second,
	})
	coordinator.Run(context.Background())
	require.True(t, coordinator.Ready(), "coordinator should be Ready against a live store")

	return &fixture{
		service:     New(st, limiter, coordinator, 100*time.Millisecond, limitReads),
		coordinator: coordinator,
		mr:          mr,
	}
}

func TestIncrementApplied(t *testing.T) {
	f := newFixture(t, 10, false)

	n, err := f.service.Increment(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	n, err = f.service.Read(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
}

func TestIncrementRefusedWhileDraining(t *testing.T) {
	f := newFixture(t, 10, false)
	f.coordinator.BeginDrain()

	_, err := f.service.Increment(context.Background(), "10.0.0.1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeServiceDraining, apperrors.Code(err))

	// Reads keep being served while draining.
	n, err := f.service.Read(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uint64(0), n)
}

func TestRateLimitedIncrementDoesNotTouchStore(t *testing.T) {
	f := newFixture(t, 1, false)

	_, err := f.service.Increment(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	_, err = f.service.Increment(context.Background(), "10.0.0.1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeRateLimited, apperrors.Code(err))

	// The rejected increment must not have changed the stored count.
	n, err := f.service.Read(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
}

func TestReadsExemptFromRateLimit(t *testing.T) {
	f := newFixture(t, 1, false)

	// Exhaust the client's bucket with an increment.
	_, err := f.service.Increment(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.service.Read(context.Background(), "10.0.0.1")
		require.NoError(t, err)
	}
}

func TestReadsShareBucketsWhenConfigured(t *testing.T) {
	f := newFixture(t, 1, true)

	_, err := f.service.Read(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	_, err = f.service.Read(context.Background(), "10.0.0.1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeRateLimited, apperrors.Code(err))
}

func TestConcurrentIncrementsAllApplied(t *testing.T) {
	f := newFixture(t, 100, false)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			_, err := f.service.Increment(context.Background(), string(rune('a'+client)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	total, err := f.service.Read(context.Background(), "reader")
	require.NoError(t, err)
	require.Equal(t, uint64(n), total)
}

func TestStoreFailureSurfacesUnavailable(t *testing.T) {
	f := newFixture(t, 10, false)
	f.mr.Close()

	_, err := f.service.Increment(context.Background(), "10.0.0.1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeStoreUnavailable, apperrors.Code(err))

	_, err = f.service.Read(context.Background(), "10.0.0.1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeStoreUnavailable, apperrors.Code(err))
}

func TestIncrementSurvivesClientDisconnect(t *testing.T) {
	f := newFixture(t, 10, false)

	// A context canceled at call time models a client that has already
	// disconnected; the increment still runs to completion on the store
	// and the in-flight slot is released.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := f.service.Increment(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
	require.Equal(t, int64(0), f.coordinator.Inflight())
}
