package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/askdokita/askdokita/server/internal/observability"
	"github.com/askdokita/askdokita/server/service/conversation"
)

// USSD responses are prefixed CON (continue session) or END (terminate)
// per the aggregator convention.
const (
	ussdMenu    = "CON Welcome to AskDokita\n1. Ask a health question\n2. About"
	ussdPrompt  = "CON Type your health question"
	ussdAbout   = "END AskDokita provides trusted health information by SMS, USSD and web chat. It does not replace professional medical advice."
	ussdInvalid = "END Invalid option."
)

// handleUSSD drives the USSD menu. The aggregator posts the full
// star-delimited navigation path on every callback, so the menu state
// machine is keyed entirely off the text prefix.
func (g *GatewayService) handleUSSD(c echo.Context) error {
	phoneNumber := c.FormValue("phoneNumber")
	text := c.FormValue("text")

	reqCtx := observability.NewRequestContext(g.logger, string(conversation.ChannelUSSD), phoneNumber)
	response := g.ussdResponse(c.Request().Context(), reqCtx, text)

	return c.String(http.StatusOK, response)
}

func (g *GatewayService) ussdResponse(ctx context.Context, reqCtx *observability.RequestContext, text string) string {
	switch {
	case text == "":
		return ussdMenu

	case text == "1":
		return ussdPrompt

	case strings.HasPrefix(text, "1*"):
		// Everything after the first star is the question. USSD sessions
		// terminate after one answer, so the exchange is stateless: no
		// history is loaded or saved.
		question := strings.SplitN(text, "*", 2)[1]
		result, err := g.orchestrator.HandleExchange(ctx, &conversation.ExchangeRequest{
			UserText: question,
			Channel:  conversation.ChannelUSSD,
		})
		if err != nil {
			reqCtx.Error("ussd exchange failed", err)
			g.metrics.RecordFailure(string(conversation.ChannelUSSD))
			return "END " + apologyReply
		}
		reqCtx.Info("ussd exchange completed")
		g.metrics.RecordExchange(string(conversation.ChannelUSSD), reqCtx.Duration())
		return "END " + result.ReplyText

	case text == "2":
		return ussdAbout

	default:
		return ussdInvalid
	}
}
