package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
)

// CounterService is the domain service behind the counter endpoints.
type CounterService interface {
	Increment(ctx context.Context, clientKey string) (uint64, error)
	Read(ctx context.Context, clientKey string) (uint64, error)
}

// CounterResponse is the body returned by the counter endpoints.
type CounterResponse struct {
	Count uint64 `json:"count"`
}

// Counter exposes the increment and read endpoints.
type Counter struct {
	service CounterService
}

// NewCounter creates the counter handler.
func NewCounter(service CounterService) *Counter {
	return &Counter{service: service}
}

// Increment handles POST /: applies one atomic increment and returns the
// post-increment value.
func (h *Counter) Increment(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.Increment(r.Context(), clientKey(r))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeCount(w, count)
}

// Read handles GET /: returns the current counter value.
func (h *Counter) Read(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.Read(r.Context(), clientKey(r))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	writeCount(w, count)
}

func writeCount(w http.ResponseWriter, count uint64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(CounterResponse{Count: count})
}

// clientKey derives the rate-limit key from the remote address. chi's RealIP
// middleware has already rewritten RemoteAddr from forwarding headers when
// present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
