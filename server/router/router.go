// Package router translates each channel's wire format into the
// orchestrator's request shape and serializes the response back.
package router

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/askdokita/askdokita/internal/profile"
	"github.com/askdokita/askdokita/server/internal/observability"
	"github.com/askdokita/askdokita/server/retrieval"
	"github.com/askdokita/askdokita/server/service/conversation"
	"github.com/askdokita/askdokita/server/sms"
)

// apologyReply is returned to SMS and USSD users when generation fails.
// Those channels cannot carry an HTTP error, so the failure is embedded in
// a syntactically valid channel reply.
const apologyReply = "Sorry, AskDokita could not answer right now. Please try again in a moment."

// GatewayService holds the channel handlers and their dependencies. All
// service handles are constructed once at startup and injected here; the
// handlers share them across every exchange.
type GatewayService struct {
	profile      *profile.Profile
	orchestrator *conversation.Service
	index        *retrieval.Index
	sender       *sms.Sender
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewGatewayService creates the channel handler set.
func NewGatewayService(p *profile.Profile, orchestrator *conversation.Service, index *retrieval.Index, sender *sms.Sender, logger *slog.Logger) *GatewayService {
	return &GatewayService{
		profile:      p,
		orchestrator: orchestrator,
		index:        index,
		sender:       sender,
		logger:       logger,
		metrics:      observability.NewMetrics(),
	}
}

// RegisterRoutes wires the channel endpoints into the echo instance. The
// rate limiter guards every channel endpoint; the root health check stays
// unlimited.
func (g *GatewayService) RegisterRoutes(e *echo.Echo, limiter echo.MiddlewareFunc) {
	e.GET("/", g.handleRoot)
	e.GET("/stats", g.handleStats)
	e.POST("/chat", g.handleChat, limiter)
	e.POST("/sms", g.handleSMS, limiter)
	e.POST("/sms/at", g.handleSMSProviderB, limiter)
	e.POST("/ussd", g.handleUSSD, limiter)
	e.POST("/retrieve", g.handleRetrieve, limiter)
}

// handleRoot is the health/welcome check.
func (g *GatewayService) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Welcome to AskDokita API",
	})
}

// handleStats reports the in-process exchange counters.
func (g *GatewayService) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, g.metrics.Snapshot())
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type retrieveResponse struct {
	Documents []string `json:"documents"`
}

// handleRetrieve queries the document index directly. The index is exposed
// as its own capability; it is not part of the generation call path.
func (g *GatewayService) handleRetrieve(c echo.Context) error {
	var req retrieveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	documents := g.index.Query(c.Request().Context(), req.Query, req.TopK)
	return c.JSON(http.StatusOK, retrieveResponse{Documents: documents})
}
