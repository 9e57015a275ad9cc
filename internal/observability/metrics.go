package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric collectors following Prometheus conventions. All collectors are
// process-wide and registered exactly once during startup.
var (
	// RequestsTotal counts counter operations by outcome. The outcome label
	// is the stable error code of the failure, or "applied" on success, so
	// overload, shutdown, and backend failure separate cleanly on dashboards.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tallyd_requests_total",
			Help: "Total counter operations by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// HTTPRequestsTotal counts HTTP requests at the transport layer.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tallyd_http_requests_total",
			Help: "Total HTTP requests by method, endpoint and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestDuration measures request latency at the transport layer.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tallyd_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// StoreCallDuration measures individual store round trips, including
	// retried attempts.
	StoreCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tallyd_store_call_duration_seconds",
			Help:    "Store call latency by operation",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// RateLimitRejectionsTotal counts requests rejected by admission control.
	RateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tallyd_rate_limit_rejections_total",
			Help: "Total requests rejected by the rate limiter",
		},
	)

	// InflightRequests gauges counter operations currently holding an
	// in-flight slot; the drain logic waits on this reaching zero.
	InflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tallyd_inflight_requests",
			Help: "Counter operations currently in flight",
		},
	)

	// HealthState exposes the coordinator state as a numeric gauge
	// (0=starting, 1=ready, 2=draining, 3=stopped).
	HealthState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tallyd_health_state",
			Help: "Health coordinator state (0=starting 1=ready 2=draining 3=stopped)",
		},
	)

	// PanicsTotal counts recovered handler panics.
	PanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tallyd_panics_total",
			Help: "Total recovered HTTP handler panics",
		},
	)
)

var registerMetricsOnce sync.Once

// InitMetrics registers all collectors with the default Prometheus registry.
// Safe to call more than once.
func InitMetrics() {
	registerMetricsOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
			StoreCallDuration,
			RateLimitRejectionsTotal,
			InflightRequests,
			HealthState,
			PanicsTotal,
		)
	})
}

// RecordOutcome records the terminal outcome of one counter operation.
func RecordOutcome(method, outcome string) {
	RequestsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordStoreCall records the duration of a single store round trip.
func RecordStoreCall(operation string, d time.Duration) {
	StoreCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordRateLimitRejection counts one admission rejection.
func RecordRateLimitRejection() {
	RateLimitRejectionsTotal.Inc()
}

// RecordPanic counts one recovered panic.
func RecordPanic() {
	PanicsTotal.Inc()
}
