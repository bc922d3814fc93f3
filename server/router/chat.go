package router

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/askdokita/askdokita/server/internal/observability"
	"github.com/askdokita/askdokita/server/service/conversation"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// streamRecord is one line of the NDJSON chat stream: either a text chunk
// or, once at stream end, the grounding marker.
type streamRecord struct {
	Text      string `json:"text,omitempty"`
	Grounding bool   `json:"grounding,omitempty"`
}

// handleChat streams a generated reply as newline-delimited JSON. Text
// records are forwarded in generation order; the grounding marker, when
// present, is always the final record.
func (g *GatewayService) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = shortuuid.New()
	}
	c.Response().Header().Set("X-Session-Id", sessionID)

	reqCtx := observability.NewRequestContext(g.logger, string(conversation.ChannelWeb), sessionID)
	ctx := c.Request().Context()

	chunks, errs := g.orchestrator.HandleExchangeStream(ctx, &conversation.ExchangeRequest{
		SessionID: sessionID,
		UserText:  req.Message,
		Channel:   conversation.ChannelWeb,
	})

	enc := json.NewEncoder(c.Response())
	wroteHeader := false
	grounded := false

	for chunk := range chunks {
		if !wroteHeader {
			c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
			c.Response().WriteHeader(http.StatusOK)
			wroteHeader = true
		}
		grounded = grounded || chunk.Grounded
		if chunk.Text == "" {
			continue
		}
		g.metrics.RecordStreamChunk()
		if err := enc.Encode(streamRecord{Text: chunk.Text}); err != nil {
			// Client went away; the orchestrator notices via the request
			// context and skips the save.
			reqCtx.Warn("chat stream write failed", slog.String("error", err.Error()))
			return nil
		}
		c.Response().Flush()
	}

	if err := <-errs; err != nil {
		reqCtx.Error("chat exchange failed", err, slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
		g.metrics.RecordFailure(string(conversation.ChannelWeb))
		if !wroteHeader {
			return echo.NewHTTPError(http.StatusInternalServerError, "generation failed")
		}
		return nil
	}

	if grounded {
		if err := enc.Encode(streamRecord{Grounding: true}); err == nil {
			c.Response().Flush()
		}
	}

	g.metrics.RecordExchange(string(conversation.ChannelWeb), reqCtx.Duration())
	reqCtx.Info("chat exchange completed",
		slog.Int(observability.LogFieldMessageLen, len(req.Message)),
		slog.Bool("grounded", grounded),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	return nil
}
