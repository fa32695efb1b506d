// Package server exposes the market API over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/minimarket/internal/domain"
	"github.com/alanyoungcy/minimarket/internal/server/handler"
	"github.com/alanyoungcy/minimarket/internal/server/middleware"
	"github.com/alanyoungcy/minimarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards the admin routes; they are closed when it is empty.
	APIKey     string
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the route handlers. Nil handlers leave their routes
// unregistered; read-only mirror nodes have no Tx or Admin handler.
type Handlers struct {
	Health   *handler.HealthHandler
	Tx       *handler.TxHandler
	Accounts *handler.AccountHandler
	Markets  *handler.MarketHandler
	Events   *handler.EventHandler
	Metadata *handler.MetadataHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers routes and wraps them in the middleware chain:
// CORS, then logging, then rate limiting when a limiter is given.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	if h.Tx != nil {
		mux.HandleFunc("POST /api/tx", h.Tx.SubmitTx)
	}
	if h.Accounts != nil {
		mux.HandleFunc("GET /api/accounts/{address}", h.Accounts.GetAccount)
		mux.HandleFunc("GET /api/global", h.Accounts.GetGlobal)
	}
	if h.Markets != nil {
		mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
		mux.HandleFunc("GET /api/markets/{id}", h.Markets.GetMarket)
		mux.HandleFunc("GET /api/markets/{id}/quote", h.Markets.Quote)
	}
	if h.Events != nil {
		mux.HandleFunc("GET /api/events", h.Events.ListEvents)
	}
	if h.Metadata != nil {
		mux.HandleFunc("GET /api/metadata/{mint}", h.Metadata.GetMetadata)
	}
	if h.Admin != nil {
		admin := middleware.Auth(cfg.APIKey)
		mux.Handle("POST /api/admin/faucet", admin(http.HandlerFunc(h.Admin.Faucet)))
		mux.Handle("POST /api/admin/feeds/{address}", admin(http.HandlerFunc(h.Admin.PushFeed)))
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var root http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(root)
	}
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
