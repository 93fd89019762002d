// Package server assembles the HTTP API: the webhook ingress plus a few
// read-only operations endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tradewire/signalbridge/internal/domain"
	"github.com/tradewire/signalbridge/internal/server/handler"
	"github.com/tradewire/signalbridge/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	APIKey          string             // guards /api/* reads; empty disables auth
	RateLimiter     domain.RateLimiter // optional webhook rate limiter
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Webhook   *handler.WebhookHandler
	Positions *handler.PositionHandler
	Status    *handler.StatusHandler
}

// Server is the HTTP front end of the signal bridge.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. The webhook route is
// rate limited when a limiter is configured; /api/* reads sit behind the API
// key middleware.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health is open: uptime monitors have no credentials.
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)

	// Webhook ingress, optionally rate limited per client IP.
	var webhook http.Handler = http.HandlerFunc(handlers.Webhook.Receive)
	if cfg.RateLimiter != nil && cfg.RateLimitPerMin > 0 {
		webhook = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimitPerMin, time.Minute)(webhook)
	}
	mux.Handle("POST /webhook", webhook)

	// Read-only operations endpoints behind the API key.
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	api.HandleFunc("GET /api/positions", handlers.Positions.ListOpen)
	api.HandleFunc("GET /api/trades", handlers.Positions.ListTrades)
	mux.Handle("/api/", middleware.Auth(cfg.APIKey)(api))

	h := middleware.Logging(logger)(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
