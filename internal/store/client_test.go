package store

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/tallyd/tallyd/internal/errors"
)

func newTestClient(t *testing.T, retryMax int) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewWithRedis(rdb, "counter", retryMax, 5*time.Millisecond, 50*time.Millisecond), mr
}

func TestReadMissingKeyIsZero(t *testing.T) {
	c, _ := newTestClient(t, 0)

	val, err := c.Read(context.Background())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if val != 0 {
		t.Fatalf("expected 0 for missing key, got %d", val)
	}
}

func TestIncrementReturnsPostIncrementValue(t *testing.T) {
	c, mr := newTestClient(t, 0)
	mr.Set("counter", "41")

	val, err := c.Increment(context.Background())
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if val != 42 {
		t.Fatalf("expected 42, got %d", val)
	}

	read, err := c.Read(context.Background())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if read != 42 {
		t.Fatalf("expected read 42, got %d", read)
	}
}

func TestIncrementSequence(t *testing.T) {
	c, _ := newTestClient(t, 0)

	for want := uint64(1); want <= 5; want++ {
		got, err := c.Increment(context.Background())
		if err != nil {
			t.Fatalf("increment %d failed: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}

// restartableRedis runs miniredis on a fixed address so a test can take the
// store down and bring it back.
func restartableRedis(t *testing.T) (addr string, stop func(), start func()) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	addr = mr.Addr()
	t.Cleanup(mr.Close)

	return addr,
		func() { mr.Close() },
		func() {
			if err := mr.Restart(); err != nil {
				t.Fatalf("miniredis restart failed: %v", err)
			}
		}
}

func TestReadRetriesWhileStoreDown(t *testing.T) {
	addr, stop, start := restartableRedis(t)
	stop()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer rdb.Close()
	c := NewWithRedis(rdb, "counter", 10, 10*time.Millisecond, 100*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		start()
	}()

	val, err := c.Read(context.Background())
	if err != nil {
		t.Fatalf("read should succeed after store recovery: %v", err)
	}
	if val != 0 {
		t.Fatalf("expected 0, got %d", val)
	}
}

func TestIncrementRetriesPreApplyFailureExactlyOnce(t *testing.T) {
	addr, stop, start := restartableRedis(t)
	stop()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer rdb.Close()
	c := NewWithRedis(rdb, "counter", 10, 10*time.Millisecond, 100*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		start()
	}()

	// Connection-refused failures happen before the store could apply the
	// command, so resending is safe and applies exactly once.
	val, err := c.Increment(context.Background())
	if err != nil {
		t.Fatalf("increment should succeed after store recovery: %v", err)
	}
	if val != 1 {
		t.Fatalf("expected exactly one applied increment, got %d", val)
	}
}

func TestIncrementExhaustsRetriesWhileStoreDown(t *testing.T) {
	addr, stop, _ := restartableRedis(t)
	stop()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer rdb.Close()
	c := NewWithRedis(rdb, "counter", 2, time.Millisecond, 5*time.Millisecond)

	_, err := c.Increment(context.Background())
	if err == nil {
		t.Fatal("expected error with store down")
	}
	if apperrors.Code(err) != apperrors.CodeStoreUnavailable {
		t.Fatalf("expected STORE_UNAVAILABLE, got %s", apperrors.Code(err))
	}
}

// TestIncrementAmbiguousAfterDispatch points the client at a listener that
// accepts and immediately drops connections: the command may have been sent,
// so the failure must surface as ambiguous rather than being resent.
func TestIncrementAmbiguousAfterDispatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	rdb := redis.NewClient(&redis.Options{Addr: ln.Addr().String(), MaxRetries: -1})
	defer rdb.Close()
	c := NewWithRedis(rdb, "counter", 5, time.Millisecond, 5*time.Millisecond)

	_, err = c.Increment(context.Background())
	if err == nil {
		t.Fatal("expected error from dropped connection")
	}
	if apperrors.Code(err) != apperrors.CodeStoreAmbiguous {
		t.Fatalf("expected STORE_AMBIGUOUS, got %s (%v)", apperrors.Code(err), err)
	}
}

func TestAuthFailureIsFatalNotRetried(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	mr.RequireAuth("secret")

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	c := NewWithRedis(rdb, "counter", 3, time.Millisecond, 5*time.Millisecond)

	_, err = c.Increment(context.Background())
	if err == nil {
		t.Fatal("expected auth error")
	}
	if apperrors.Code(err) != apperrors.CodeStoreUnauthorized {
		t.Fatalf("expected STORE_UNAUTHORIZED, got %s (%v)", apperrors.Code(err), err)
	}
}

func TestPing(t *testing.T) {
	c, mr := newTestClient(t, 0)

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	mr.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping failure after store close")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     failureKind
		preApply bool
	}{
		{"dial refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, failureUnavailable, true},
		{"pool timeout", errors.New("redis: connection pool timeout"), failureUnavailable, true},
		{"eof after dispatch", io.EOF, failureUnavailable, false},
		{"context deadline", context.DeadlineExceeded, failureUnavailable, false},
		{"context canceled", context.Canceled, failureUnavailable, false},
		{"read op error", &net.OpError{Op: "read", Err: errors.New("connection reset")}, failureUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, preApply := classify(tt.err)
			if kind != tt.kind || preApply != tt.preApply {
				t.Fatalf("classify(%v) = (%v, %v), want (%v, %v)", tt.err, kind, preApply, tt.kind, tt.preApply)
			}
		})
	}
}
