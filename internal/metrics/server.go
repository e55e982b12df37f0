package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status represents the health state reported by /health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// HealthFunc reports the current status and optional details.
type HealthFunc func(ctx context.Context) (Status, map[string]any)

// Server provides HTTP endpoints for health and Prometheus metrics.
type Server struct {
	health HealthFunc
	server *http.Server
}

// NewServer creates a new metrics server. A nil health func always reports healthy.
func NewServer(port int, health HealthFunc) *Server {
	if health == nil {
		health = func(context.Context) (Status, map[string]any) { return StatusHealthy, nil }
	}

	mux := http.NewServeMux()
	s := &Server{
		health: health,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, details := s.health(r.Context())

	response := map[string]any{"status": string(status)}
	if len(details) > 0 {
		response["details"] = details
	}
	w.Header().Set("Content-Type", "application/json")

	if status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}
