package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tallyd/tallyd/internal/health"
)

// StorePinger reports store connectivity for the health body.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ProbeResponse is the body returned by the probe endpoints.
type ProbeResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// Health exposes the liveness and readiness probes backed by the health
// coordinator. Probe endpoints bypass rate limiting and in-flight
// accounting: the autoscaler must be able to observe the replica while it
// drains.
type Health struct {
	coordinator  *health.Coordinator
	store        StorePinger
	storeTimeout time.Duration
}

// NewHealth creates the probe handlers.
func NewHealth(coordinator *health.Coordinator, store StorePinger, storeTimeout time.Duration) *Health {
	return &Health{
		coordinator:  coordinator,
		store:        store,
		storeTimeout: storeTimeout,
	}
}

// Liveness handles GET /healthz. Healthy in every state except Stopped, so
// the supervisor does not restart a replica that is merely draining. The
// body reports live store connectivity for operators.
func (h *Health) Liveness(w http.ResponseWriter, r *http.Request) {
	storeStatus := "connected"
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.storeTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			storeStatus = "disconnected"
		}
	}

	status := http.StatusOK
	if !h.coordinator.Live() {
		status = http.StatusServiceUnavailable
	}

	writeProbe(w, status, ProbeResponse{
		Status: h.coordinator.State().String(),
		Store:  storeStatus,
	})
}

// Readiness handles GET /readyz. Ready only while the coordinator is in
// Ready; the router stops sending traffic as soon as draining begins.
func (h *Health) Readiness(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !h.coordinator.Ready() {
		status = http.StatusServiceUnavailable
	}

	writeProbe(w, status, ProbeResponse{
		Status: h.coordinator.State().String(),
	})
}

func writeProbe(w http.ResponseWriter, status int, body ProbeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
