package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"
	// DefaultMetricsPath is the default path for the metrics endpoint.
	DefaultMetricsPath = "/metrics"
	// DefaultHealthPath is the default path for the health endpoint.
	DefaultHealthPath = "/health"
	// DefaultReadyPath is the default path for the readiness endpoint.
	DefaultReadyPath = "/ready"
)

// Server is an HTTP server that exposes Prometheus metrics and probes.
type Server struct {
	mu       sync.RWMutex
	server   *http.Server
	metrics  *Metrics
	health   *HealthChecker
	running  bool
	addr     string
	listener net.Listener
	log      zerolog.Logger
}

// ServerOption is a function that configures a Server.
type ServerOption func(*Server)

// WithHealthChecker sets the health checker for the server.
func WithHealthChecker(h *HealthChecker) ServerOption {
	return func(s *Server) {
		s.health = h
	}
}

// WithAddr sets the address for the server.
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the server's logger.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer creates a new metrics server for m.
func NewServer(m *Metrics, opts ...ServerOption) *Server {
	s := &Server{
		metrics: m,
		addr:    DefaultMetricsAddr,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router serving /metrics, /health and /ready.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Method(http.MethodGet, DefaultMetricsPath, promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	r.Get(DefaultHealthPath, s.handleHealth)
	r.Get(DefaultReadyPath, s.handleReady)
	return r
}

// Start starts serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.running = true

	srv := s.server
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	s.log.Info().Str("addr", listener.Addr().String()).Msg("metrics server listening")
	return nil
}

// Stop stops the metrics server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.server
	s.running = false
	s.mu.Unlock()

	return server.Shutdown(ctx)
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy", "timestamp": time.Now().UTC()})
		return
	}
	status := s.health.GetStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := s.health == nil || s.health.IsReady()
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"ready": ready, "timestamp": time.Now().UTC()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
