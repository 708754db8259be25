// Package server exposes the lottery over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
	"github.com/alanyoungcy/lotterykeeper/internal/server/handler"
	"github.com/alanyoungcy/lotterykeeper/internal/server/middleware"
	"github.com/alanyoungcy/lotterykeeper/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards the upkeep and dev routes. Empty disables the check.
	APIKey          string
	EnterRateLimit  int
	EnterRateWindow time.Duration
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies middleware.TrustedProxies
}

// Handlers aggregates the HTTP handlers. Rounds and Archives are optional.
type Handlers struct {
	Health   *handler.HealthHandler
	Lottery  *handler.LotteryHandler
	Rounds   *handler.RoundHandler
	Archives *handler.ArchiveHandler
	// DevRoutes registers the mock fulfillment endpoint.
	DevRoutes bool
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the logging and CORS
// middleware. limiter may be nil, which disables entry rate limiting.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()
	operator := middleware.RequireAPIKey(cfg.APIKey)
	enterLimit := middleware.RateLimit(limiter, "enter", cfg.EnterRateLimit, cfg.EnterRateWindow, cfg.TrustedProxies, logger)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	l := handlers.Lottery
	mux.HandleFunc("GET /api/lottery", l.GetLottery)
	mux.HandleFunc("GET /api/lottery/players/{index}", l.GetPlayer)
	mux.Handle("POST /api/lottery/enter", enterLimit(http.HandlerFunc(l.Enter)))
	mux.Handle("POST /api/upkeep/check", operator(http.HandlerFunc(l.CheckUpkeep)))
	mux.Handle("POST /api/upkeep/perform", operator(http.HandlerFunc(l.PerformUpkeep)))
	// Fulfillments authenticate by signature, not by API key.
	mux.HandleFunc("POST /api/vrf/fulfill", l.Fulfill)
	mux.HandleFunc("GET /api/events", l.ListEvents)
	if handlers.DevRoutes {
		mux.Handle("POST /api/dev/vrf/fulfill/{id}", operator(http.HandlerFunc(l.DevFulfill)))
	}

	if handlers.Rounds != nil {
		mux.HandleFunc("GET /api/rounds", handlers.Rounds.ListRounds)
		mux.HandleFunc("GET /api/rounds/{round}", handlers.Rounds.GetRound)
	}
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger, cfg.TrustedProxies)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
