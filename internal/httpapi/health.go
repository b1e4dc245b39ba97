// Package httpapi serves the gateway's operational endpoints: health,
// readiness, and metrics. The tenant-facing REST surface lives in a
// separate collaborator service.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/metrics"
)

// StorePinger is the liveness slice of the persistent store
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Server holds dependencies for the operational endpoints
type Server struct {
	Store      StorePinger
	Metrics    *metrics.Registry
	PromReg    *prometheus.Registry
	QueueDepth func() int
	// readiness threshold: ready iff queue depth stays below this
	ReadyMaxQueueDepth int
}

type healthResponse struct {
	OK         bool             `json:"ok"`
	QueueDepth int              `json:"queueDepth"`
	Counters   metrics.Snapshot `json:"counters"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// Routes builds the operational router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.Health)
	r.Get("/readyz", s.Ready)
	r.Get("/metricsz", s.MetricsSnapshot)
	if s.PromReg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.PromReg, promhttp.HandlerOpts{}))
	}

	return r
}

// Health returns 200 iff the store answers a ping. The body always
// carries queue depth and counters for quick triage.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	snap := s.Metrics.Snapshot()
	resp := healthResponse{QueueDepth: s.QueueDepth(), Counters: snap}

	if err := s.Store.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("health: store unreachable")
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.OK = true
	writeJSON(w, http.StatusOK, resp)
}

// Ready returns 200 iff the store is reachable AND the queue has room
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	depth := s.QueueDepth()
	if err := s.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "reason": "store_unreachable"})
		return
	}
	if depth >= s.ReadyMaxQueueDepth {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "reason": "queue_backpressure", "queueDepth": depth})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true, "queueDepth": depth})
}

// MetricsSnapshot serves the JSON snapshot of pipeline metrics
func (s *Server) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Metrics.Snapshot())
}
