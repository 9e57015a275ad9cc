// Package counter orchestrates counter operations: lifecycle gating, then
// admission control, then the store call, with the result mapped to a stable
// outcome. Per request the path is Received → (Admitted | Rejected) →
// (Applied | Failed); every terminal outcome is recorded to metrics.
package counter

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/tallyd/tallyd/internal/errors"
	"github.com/tallyd/tallyd/internal/health"
	"github.com/tallyd/tallyd/internal/observability"
	"github.com/tallyd/tallyd/internal/ratelimit"
	"github.com/tallyd/tallyd/internal/store"
)

// OutcomeApplied labels a successfully applied operation in metrics; failed
// operations are labeled with their lowercased error code.
const OutcomeApplied = "applied"

// Service coordinates the increment and read paths. Concurrency-safe; all
// shared state lives in the injected collaborators.
type Service struct {
	store      *store.Client
	limiter    *ratelimit.Limiter
	health     *health.Coordinator
	opTimeout  time.Duration
	limitReads bool
}

// New creates a counter service.
func New(st *store.Client, limiter *ratelimit.Limiter, coord *health.Coordinator, opTimeout time.Duration, limitReads bool) *Service {
	return &Service{
		store:      st,
		limiter:    limiter,
		health:     coord,
		opTimeout:  opTimeout,
		limitReads: limitReads,
	}
}

// Increment applies one atomic increment and returns the post-increment
// value exactly as the store reported it. The value is never re-read, so
// concurrent increments from other replicas cannot race the response.
func (s *Service) Increment(ctx context.Context, clientKey string) (n uint64, err error) {
	ctx, span := observability.Tracer().Start(ctx, "counter.increment")
	defer func() { finishSpan(span, n, err) }()
	defer func() { observability.RecordOutcome("increment", outcomeLabel(err)) }()

	if !s.health.AcquireIncrement() {
		return 0, apperrors.NewServiceDraining("service is shutting down")
	}
	defer s.health.Release()

	if !s.limiter.Allow(clientKey) {
		observability.RecordRateLimitRejection()
		return 0, apperrors.NewRateLimited("rate limit exceeded")
	}

	// The store call runs detached from client cancellation, bounded only by
	// the operation deadline. A disconnected client abandons the response,
	// but the call is still awaited here so the in-flight slot is released
	// only once the outcome is known. Abandoning the call mid-flight would
	// risk a silent double increment on retry.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()

	return s.store.Increment(opCtx)
}

// Read returns the current counter value. Reads stay admitted while the
// service drains and, being idempotent, retry freely inside the store
// client.
func (s *Service) Read(ctx context.Context, clientKey string) (n uint64, err error) {
	ctx, span := observability.Tracer().Start(ctx, "counter.read")
	defer func() { finishSpan(span, n, err) }()
	defer func() { observability.RecordOutcome("read", outcomeLabel(err)) }()

	if !s.health.AcquireRead() {
		return 0, apperrors.NewServiceDraining("service is shutting down")
	}
	defer s.health.Release()

	if s.limitReads && !s.limiter.Allow(clientKey) {
		observability.RecordRateLimitRejection()
		return 0, apperrors.NewRateLimited("rate limit exceeded")
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	return s.store.Read(opCtx)
}

func outcomeLabel(err error) string {
	if err == nil {
		return OutcomeApplied
	}
	return strings.ToLower(apperrors.Code(err))
}

func finishSpan(span trace.Span, n uint64, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.Code(err))
	} else {
		span.SetAttributes(attribute.Int64("counter.value", int64(n)))
	}
	span.End()
}
