// Package http exposes the read-only operational surface: registry
// health snapshots and Prometheus metrics. It is started only when the
// CLI asks for it.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/vprism/vprism/internal/registry"
	"github.com/vprism/vprism/internal/router"
)

// ServerConfig holds listener and timeout settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig binds local-only.
func DefaultServerConfig(addr string) ServerConfig {
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	return ServerConfig{
		Addr:         addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server serves /health and /metrics.
type Server struct {
	router *mux.Router
	server *http.Server
	reg    *registry.Registry
	rt     *router.Router
}

// NewServer verifies the port is free and wires the routes. gatherer may
// be nil when metrics are disabled.
func NewServer(cfg ServerConfig, reg *registry.Registry, rt *router.Router, gatherer prometheus.Gatherer) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen address %s unavailable: %w", cfg.Addr, err)
	}
	listener.Close()

	s := &Server{
		router: mux.NewRouter(),
		reg:    reg,
		rt:     rt,
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type providerHealth struct {
	Name        string  `json:"name"`
	Healthy     bool    `json:"healthy"`
	Score       float64 `json:"score"`
	Breaker     string  `json:"breaker,omitempty"`
	SuccessRate float64 `json:"success_rate"`
	AvgLatency  float64 `json:"avg_latency_ms"`
	Requests    int64   `json:"requests"`
}

type healthResponse struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Providers []providerHealth `json:"providers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshots := s.reg.Snapshot()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Providers: make([]providerHealth, 0, len(snapshots)),
	}
	anyHealthy := len(snapshots) == 0
	for _, snap := range snapshots {
		ph := providerHealth{
			Name:    snap.Name,
			Healthy: snap.Healthy,
			Score:   snap.Score,
		}
		if s.rt != nil {
			ph.Breaker = s.rt.BreakerState(snap.Name)
			ph.SuccessRate, ph.AvgLatency, ph.Requests = s.rt.PerformanceSnapshot(snap.Name)
		}
		if snap.Healthy {
			anyHealthy = true
		}
		resp.Providers = append(resp.Providers, ph)
	}

	code := http.StatusOK
	if !anyHealthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warn().Err(err).Msg("health response encode failed")
	}
}
