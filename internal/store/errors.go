package store

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// failureKind classifies a store error for the retry policy.
type failureKind int

const (
	failureNone failureKind = iota
	failureUnavailable
	failureUnauthorized
	failureUnknown
)

// classify maps a raw client error to a failure kind plus whether the
// failure provably occurred before the store could have applied the command.
// Pre-apply failures (dial refused, connection setup, pool exhaustion) are
// safe to resend; anything that failed after dispatch (read timeout, EOF
// mid-reply, canceled context) leaves the outcome unknown.
func classify(err error) (kind failureKind, preApply bool) {
	if err == nil {
		return failureNone, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return failureUnavailable, false
	}

	if isAuthError(err) {
		return failureUnauthorized, false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return failureUnavailable, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return failureUnavailable, true
	}
	// go-redis does not export its pool timeout sentinel; it fires before a
	// connection is acquired, so the command was never sent.
	if strings.Contains(err.Error(), "connection pool timeout") {
		return failureUnavailable, true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return failureUnavailable, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return failureUnavailable, false
	}

	// Server-reported error replies arrive as redis protocol errors.
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return failureUnknown, false
	}

	return failureUnknown, false
}

func isAuthError(err error) bool {
	var redisErr redis.Error
	if !errors.As(err, &redisErr) {
		return false
	}
	msg := redisErr.Error()
	return strings.HasPrefix(msg, "NOAUTH") ||
		strings.HasPrefix(msg, "WRONGPASS") ||
		strings.HasPrefix(msg, "ERR AUTH")
}
