package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// ServerConfig holds configuration for the RPC server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8899" or "127.0.0.1:8899")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxRequestSize is the maximum size of a request body in bytes.
	MaxRequestSize int64

	// AllowedOrigins for CORS (empty means allow all).
	AllowedOrigins []string

	EnableRateLimit bool
	RateLimitRPS    float64
	RateLimitBurst  int

	// Version is reported by getVersion.
	Version string

	Logger zerolog.Logger

	// Observer, when set, is told about every dispatched method call.
	Observer Observer
}

// Observer receives one event per JSON-RPC call. code is zero on success.
type Observer interface {
	ObserveRequest(method string, code int, elapsed time.Duration)
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":8899",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		MaxRequestSize:  1 << 20,
		AllowedOrigins:  []string{"*"},
		EnableRateLimit: false,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		Version:         "0.1.0",
		Logger:          zerolog.Nop(),
	}
}

// Server is a JSON-RPC 2.0 server over a ledger.
type Server struct {
	config   *ServerConfig
	handlers *Handlers
	log      zerolog.Logger
	limiter  *RateLimiter

	mu      sync.Mutex
	server  *http.Server
	running bool
}

// NewServer creates a new RPC server dispatching to handlers.
func NewServer(config *ServerConfig, handlers *Handlers) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	s := &Server{
		config:   config,
		handlers: handlers,
		log:      config.Logger.With().Str("component", "rpc").Logger(),
	}
	if config.EnableRateLimit {
		s.limiter = NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
	}
	return s
}

// Handlers returns the method table.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Handler returns the HTTP handler serving JSON-RPC on POST /.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(LoggingMiddleware(s.log))
	r.Use(chimw.Recoverer)
	if s.limiter != nil {
		r.Use(s.limiter.Handler)
	}

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Requested-With", "solana-client"},
		MaxAge:         86400,
	}))
	r.Use(ContentTypeMiddleware)

	r.Post("/", s.handleRequest)
	r.Get("/health", s.handleHealth)
	return r
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	if s.limiter != nil {
		go s.cleanupLimiter(ctx)
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("rpc server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully stops the RPC server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) cleanupLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Cleanup()
		}
	}
}

// handleHealth answers plain HTTP health probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.handlers.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `"unhealthy"`)
		return
	}
	_, _ = io.WriteString(w, `"ok"`)
}

// handleRequest processes incoming JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeResponse(w, errorResponse(nil, NewRPCError(ParseError, "failed to read request body")))
		return
	}

	if len(body) > 0 && body[0] == '[' {
		s.handleBatchRequest(w, r, body)
		return
	}

	s.writeResponse(w, s.processRequest(r.Context(), body))
}

// handleBatchRequest processes a batch of JSON-RPC requests.
func (s *Server) handleBatchRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	var requests []json.RawMessage
	if err := json.Unmarshal(body, &requests); err != nil {
		s.writeResponse(w, errorResponse(nil, NewRPCError(ParseError, "invalid JSON")))
		return
	}
	if len(requests) == 0 {
		s.writeResponse(w, errorResponse(nil, NewRPCError(InvalidRequest, "empty batch")))
		return
	}

	responses := make([]RPCResponse, 0, len(requests))
	for _, reqBody := range requests {
		response := s.processRequest(r.Context(), reqBody)
		// Notifications get no response.
		if response.ID != nil || response.Error != nil {
			responses = append(responses, response)
		}
	}

	if err := json.NewEncoder(w).Encode(responses); err != nil {
		s.log.Warn().Err(err).Msg("failed to write batch response")
	}
}

// processRequest processes a single JSON-RPC request.
func (s *Server) processRequest(ctx context.Context, body []byte) RPCResponse {
	var request RPCRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return errorResponse(nil, NewRPCError(ParseError, "invalid JSON"))
	}
	if request.JSONRPC != JSONRPCVersion {
		return errorResponse(request.ID, NewRPCError(InvalidRequest, "invalid jsonrpc version"))
	}

	handler := s.handlers.GetHandler(request.Method)
	if handler == nil {
		return errorResponse(request.ID, NewRPCError(MethodNotFound, fmt.Sprintf("method not found: %s", request.Method)))
	}

	start := time.Now()
	result, rpcErr := handler(ctx, request.Params)
	if s.config.Observer != nil {
		code := 0
		if rpcErr != nil {
			code = rpcErr.Code
		}
		s.config.Observer.ObserveRequest(request.Method, code, time.Since(start))
	}
	if rpcErr != nil {
		return errorResponse(request.ID, rpcErr)
	}

	return RPCResponse{
		JSONRPC: JSONRPCVersion,
		Result:  result,
		ID:      request.ID,
	}
}

func errorResponse(id interface{}, rpcErr *RPCError) RPCResponse {
	return RPCResponse{
		JSONRPC: JSONRPCVersion,
		Error:   rpcErr,
		ID:      id,
	}
}

// writeResponse writes a JSON-RPC response.
func (s *Server) writeResponse(w http.ResponseWriter, response RPCResponse) {
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Warn().Err(err).Msg("failed to write response")
	}
}
