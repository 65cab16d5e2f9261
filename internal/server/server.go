// Package server assembles the HTTP + WebSocket API: routes, middleware, and
// graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/beliefmarket/beliefd/internal/domain"
	"github.com/beliefmarket/beliefd/internal/server/handler"
	"github.com/beliefmarket/beliefd/internal/server/middleware"
	"github.com/beliefmarket/beliefd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// AdminAPIKey guards the platform treasury routes. Empty disables the
	// check (development only); the ledger's owner check still applies.
	AdminAPIKey string

	// Vote rate limiting, applied per client IP. Zero disables it.
	VoteRateLimit  int
	VoteRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Votes    *handler.VoteHandler
	Reveals  *handler.RevealHandler
	Claims   *handler.ClaimHandler
	Platform *handler.PlatformHandler
}

// Server is the belief market API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil,
// which disables vote rate limiting along with a zero VoteRateLimit.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Vote submissions carry stakes, so they get their own limiter; reads
	// stay unthrottled.
	limited := func(h http.HandlerFunc) http.Handler {
		if limiter == nil || cfg.VoteRateLimit <= 0 {
			return h
		}
		return middleware.RateLimit(limiter, cfg.VoteRateLimit, cfg.VoteRateWindow)(h)
	}

	// Platform treasury routes require the admin API key on top of the
	// ledger's owner check.
	admin := middleware.AdminAuth(cfg.AdminAPIKey)

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/reveal", handlers.Markets.GetRevealStatus)

	// Encrypted votes.
	mux.Handle("POST /api/markets/{id}/votes", limited(handlers.Votes.CastVote))
	mux.HandleFunc("GET /api/markets/{id}/votes/{addr}", handlers.Votes.GetVoteStatus)

	// Reveal bridge.
	mux.HandleFunc("POST /api/markets/{id}/reveal", handlers.Reveals.RequestReveal)
	mux.HandleFunc("POST /api/oracle/callback", handlers.Reveals.OracleCallback)

	// Settlement.
	mux.Handle("POST /api/markets/{id}/claims/prize", limited(handlers.Claims.ClaimPrize))
	mux.Handle("POST /api/markets/{id}/claims/refund", limited(handlers.Claims.ClaimRefund))
	mux.HandleFunc("GET /api/markets/{id}/claims/{addr}", handlers.Claims.GetClaimStatus)

	// Platform treasury.
	mux.HandleFunc("GET /api/platform/stake", handlers.Platform.GetStake)
	mux.Handle("PUT /api/platform/stake", admin(http.HandlerFunc(handlers.Platform.SetStake)))
	mux.Handle("POST /api/platform/withdraw", admin(http.HandlerFunc(handlers.Platform.Withdraw)))

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

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
