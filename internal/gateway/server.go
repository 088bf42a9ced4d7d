// Package gateway serves a local Provider to remote dialogue runners: the
// evaluator protocol on a websocket route plus a JSON health check.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"parley/internal/gateway/handlers"
	"parley/internal/gateway/middleware"
	"parley/internal/provider"
	"parley/internal/provider/remote"
)

// DefaultEvalPath is where the evaluator websocket is mounted.
const DefaultEvalPath = "/v1/eval"

// Config configures the gateway.
type Config struct {
	Addr     string // listen address, e.g. 127.0.0.1:8765
	EvalPath string // websocket route, DefaultEvalPath when empty
}

// Server is the evaluator gateway.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     zerolog.Logger
	started    time.Time
}

// NewServer mounts p behind the evaluator route.
func NewServer(cfg Config, p provider.Provider, logger zerolog.Logger) *Server {
	if cfg.EvalPath == "" {
		cfg.EvalPath = DefaultEvalPath
	}

	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		started: time.Now(),
	}

	s.router.Handle(cfg.EvalPath, remote.NewHandler(p, logger)).Methods(http.MethodGet)
	s.router.HandleFunc("/health", handlers.HealthHandler(p, s.started, 5*time.Second)).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)

	// Recovery -> Logging -> router
	handler := middleware.Recovery(logger)(middleware.Logging(logger)(s.router))

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("evaluator gateway listening")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits up to five seconds for
// in-flight requests. Hijacked websocket connections are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down evaluator gateway")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Handler returns the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
