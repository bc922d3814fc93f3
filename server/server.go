// Package server assembles the HTTP gateway: echo instance, middleware,
// channel routes and the startup/shutdown lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/askdokita/askdokita/internal/profile"
	"github.com/askdokita/askdokita/server/ai"
	"github.com/askdokita/askdokita/server/middleware"
	"github.com/askdokita/askdokita/server/retrieval"
	"github.com/askdokita/askdokita/server/router"
	"github.com/askdokita/askdokita/server/service/conversation"
	"github.com/askdokita/askdokita/server/sms"
	"github.com/askdokita/askdokita/store"
)

// Server is the gateway HTTP server. All service handles are created once
// at startup and shared by every exchange.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	sessions   store.SessionStore
	index      *retrieval.Index
	logger     *slog.Logger
}

// New wires the gateway together from its injected service handles.
func New(p *profile.Profile, sessions store.SessionStore, generator ai.Generator, index *retrieval.Index, sender *sms.Sender, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	// The upstream deployment allowed all origins; the web chat client is
	// served from elsewhere.
	e.Use(echomw.CORS())

	limiter := middleware.RateLimit(middleware.NewRateLimiter(p.RateLimitPerMinute))

	orchestrator := conversation.NewService(sessions, generator)
	gateway := router.NewGatewayService(p, orchestrator, index, sender, logger)
	gateway.RegisterRoutes(e, limiter)

	return &Server{
		echoServer: e,
		profile:    p,
		sessions:   sessions,
		index:      index,
		logger:     logger,
	}
}

// Start runs the HTTP listener until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	s.logger.Info("gateway listening", "addr", addr, "mode", s.profile.Mode)

	if err := s.echoServer.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the shared service handles.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echoServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shut down http server", "error", err)
	}
	if err := s.sessions.Close(); err != nil {
		s.logger.Error("failed to close session store", "error", err)
	}
	if err := s.index.Close(); err != nil {
		s.logger.Error("failed to close document index", "error", err)
	}
	s.logger.Info("gateway stopped")
	return nil
}
