package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"Cirkle/backend/go/internal/config"
	"Cirkle/backend/go/pkg/circuitbreaker"
	"Cirkle/backend/go/pkg/httpmiddleware"
	"Cirkle/backend/go/pkg/logger"
	"Cirkle/backend/go/pkg/ratelimiter"
)

// Middleware defines a function to wrap an http.Handler.
type Middleware func(http.Handler) http.Handler

// Server wraps http.Server and applies the configured middleware chain
// around a single root handler (usually a gin engine).
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
}

// ServerOption defines a function for configuring a Server.
type ServerOption func(*Server)

// WithAddress sets the address for the server to listen on.
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a Server for handler. Rate limiting and circuit breaking
// are applied if enabled in cfg.Middleware.
func NewServer(cfg *config.AppConfig, handler http.Handler, opts ...ServerOption) (*Server, error) {
	srv := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Address,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = config.DefaultServerAddress
	}

	var middlewares []Middleware
	if cfg.Middleware.RateLimiter.Enabled {
		middlewares = append(middlewares, httpmiddleware.RateLimit(ratelimiter.FromConfig(cfg.Middleware.RateLimiter)))
		srv.logger.WithPayload(map[string]interface{}{
			"rate":     cfg.Middleware.RateLimiter.Rate,
			"capacity": cfg.Middleware.RateLimiter.Capacity,
		}).Info("Rate limiter middleware enabled")
	}
	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker, err := circuitbreaker.FromConfig("http-server", cfg.Middleware.CircuitBreaker)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		middlewares = append(middlewares, httpmiddleware.CircuitBreak(breaker))
		srv.logger.Info("Circuit breaker middleware enabled")
	}

	// Apply in reverse so the first middleware is the outermost.
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	srv.httpServer.Handler = handler
	return srv, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("address", s.httpServer.Addr).Info("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
