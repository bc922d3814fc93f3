package router

import (
	"encoding/xml"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/askdokita/askdokita/server/internal/observability"
	"github.com/askdokita/askdokita/server/service/conversation"
)

// twimlResponse is the XML reply document understood by SMS provider A.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// handleSMS answers provider A's inbound-message callback synchronously
// with an XML reply. The sender's number is the session key. The callback
// always gets valid XML back, even on internal failure.
func (g *GatewayService) handleSMS(c echo.Context) error {
	body := c.FormValue("Body")
	from := c.FormValue("From")

	if body == "" || from == "" {
		return c.XML(http.StatusOK, twimlResponse{Message: "Please send a health question."})
	}

	reqCtx := observability.NewRequestContext(g.logger, string(conversation.ChannelSMS), from)

	result, err := g.orchestrator.HandleExchange(c.Request().Context(), &conversation.ExchangeRequest{
		SessionID: from,
		UserText:  body,
		Channel:   conversation.ChannelSMS,
	})
	if err != nil {
		reqCtx.Error("sms exchange failed", err, slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
		g.metrics.RecordFailure(string(conversation.ChannelSMS))
		return c.XML(http.StatusOK, twimlResponse{Message: apologyReply})
	}

	reqCtx.Info("sms exchange completed",
		slog.Int(observability.LogFieldMessageLen, len(body)),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	g.metrics.RecordExchange(string(conversation.ChannelSMS), reqCtx.Duration())
	return c.XML(http.StatusOK, twimlResponse{Message: result.ReplyText})
}

type providerBResponse struct {
	Status string `json:"status"`
}

// handleSMSProviderB answers provider B's inbound callback with a status
// acknowledgment and delivers the reply through the provider's outbound
// send API. When outbound credentials are absent the send path is inert.
func (g *GatewayService) handleSMSProviderB(c echo.Context) error {
	text := c.FormValue("text")
	from := c.FormValue("from")

	if text == "" || from == "" {
		return c.JSON(http.StatusBadRequest, providerBResponse{Status: "error"})
	}

	reqCtx := observability.NewRequestContext(g.logger, string(conversation.ChannelSMS), from)

	result, err := g.orchestrator.HandleExchange(c.Request().Context(), &conversation.ExchangeRequest{
		SessionID: from,
		UserText:  text,
		Channel:   conversation.ChannelSMS,
	})
	if err != nil {
		reqCtx.Error("sms exchange failed", err, slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
		g.metrics.RecordFailure(string(conversation.ChannelSMS))
		return c.JSON(http.StatusOK, providerBResponse{Status: "error"})
	}

	if g.sender.Enabled() {
		if err := g.sender.Send(c.Request().Context(), from, result.ReplyText); err != nil {
			reqCtx.Error("outbound sms delivery failed", err)
			return c.JSON(http.StatusOK, providerBResponse{Status: "error"})
		}
	} else {
		reqCtx.Warn("outbound sms not configured, reply not delivered")
	}

	reqCtx.Info("sms exchange completed",
		slog.Int(observability.LogFieldMessageLen, len(text)),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	g.metrics.RecordExchange(string(conversation.ChannelSMS), reqCtx.Duration())
	return c.JSON(http.StatusOK, providerBResponse{Status: "success"})
}
