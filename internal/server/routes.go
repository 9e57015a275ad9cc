package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallyd/tallyd/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes(deps Deps) {
	counter := handlers.NewCounter(deps.Counter)
	s.router.Post("/", counter.Increment)
	s.router.Get("/", counter.Read)

	// Probe endpoints per the health coordinator; exempt from admission
	// control so the autoscaler can observe a draining replica.
	probes := handlers.NewHealth(deps.Coordinator, deps.Store, deps.ProbeTimeout)
	s.router.Get("/healthz", probes.Liveness)
	s.router.Get("/readyz", probes.Readiness)

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Prometheus metrics endpoint
	if deps.MetricsEnabled {
		s.router.Get("/metrics", promhttp.Handler().ServeHTTP)
	}
}
