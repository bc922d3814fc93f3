// Package conversation implements the channel-neutral exchange orchestration:
// load history, generate a reply, append the two new turns, persist.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/askdokita/askdokita/server/ai"
	gwerrors "github.com/askdokita/askdokita/internal/errors"
)

// saveTimeout bounds the history write that runs detached from the request
// context, so a completed generation can still be persisted after the
// client goes away.
const saveTimeout = 10 * time.Second

// HistoryStore is the slice of the session store the orchestrator needs.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]ai.Turn, error)
	Save(ctx context.Context, sessionID string, history []ai.Turn) error
}

// ExchangeRequest is the channel-neutral input for one exchange. An empty
// SessionID marks a stateless exchange: no history is loaded or saved
// (the USSD channel works this way).
type ExchangeRequest struct {
	SessionID string
	UserText  string
	Channel   Channel
}

// ExchangeResult is the channel-neutral output of one exchange.
type ExchangeResult struct {
	ReplyText string
	Grounded  bool
}

// Service orchestrates exchanges between the channels, the session store
// and the generation provider.
type Service struct {
	sessions  HistoryStore
	generator ai.Generator
}

// NewService creates a conversation service.
func NewService(sessions HistoryStore, generator ai.Generator) *Service {
	return &Service{
		sessions:  sessions,
		generator: generator,
	}
}

// HandleExchange performs one synchronous exchange. A persistence failure
// after a successful generation is logged but does not fail the exchange:
// the reply is still returned to the caller.
func (s *Service) HandleExchange(ctx context.Context, req *ExchangeRequest) (*ExchangeResult, error) {
	if strings.TrimSpace(req.UserText) == "" {
		return nil, gwerrors.InvalidArgument("user text is required")
	}

	history, err := s.loadHistory(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	result, err := s.generator.Generate(ctx, s.buildGenerateRequest(history, req))
	if err != nil {
		return nil, err
	}

	s.persist(ctx, req, history, result.Text)

	return &ExchangeResult{
		ReplyText: result.Text,
		Grounded:  result.Grounded,
	}, nil
}

// HandleExchangeStream performs one streaming exchange. Chunks are
// forwarded in generation order; the accumulated reply is persisted once
// the stream completes. If the caller's context is canceled mid-stream,
// forwarding stops, the upstream generation is canceled and the save step
// is skipped.
func (s *Service) HandleExchangeStream(ctx context.Context, req *ExchangeRequest) (<-chan ai.Chunk, <-chan error) {
	chunkOut := make(chan ai.Chunk)
	errOut := make(chan error, 1)

	go func() {
		defer close(chunkOut)
		defer close(errOut)

		if strings.TrimSpace(req.UserText) == "" {
			errOut <- gwerrors.InvalidArgument("user text is required")
			return
		}

		history, err := s.loadHistory(ctx, req.SessionID)
		if err != nil {
			errOut <- err
			return
		}

		chunks, errs := s.generator.GenerateStream(ctx, s.buildGenerateRequest(history, req))

		var reply strings.Builder
		grounded := false
		for chunk := range chunks {
			reply.WriteString(chunk.Text)
			grounded = grounded || chunk.Grounded
			select {
			case chunkOut <- chunk:
			case <-ctx.Done():
				errOut <- gwerrors.ProviderFailed("exchange canceled", ctx.Err())
				return
			}
		}
		if err := <-errs; err != nil {
			errOut <- err
			return
		}

		s.persist(ctx, req, history, reply.String())
	}()

	return chunkOut, errOut
}

func (s *Service) buildGenerateRequest(history []ai.Turn, req *ExchangeRequest) *ai.GenerateRequest {
	return &ai.GenerateRequest{
		History:           history,
		UserText:          req.UserText,
		SystemInstruction: instructionFor(req.Channel),
		Tools:             ai.ToolSet{WebSearch: true},
	}
}

func (s *Service) loadHistory(ctx context.Context, sessionID string) ([]ai.Turn, error) {
	if sessionID == "" {
		return []ai.Turn{}, nil
	}
	return s.sessions.Load(ctx, sessionID)
}

// persist appends the user and model turns and saves the history with a
// fresh TTL. The write runs detached from the request context; a failure
// is a logged side-failure, never a request failure.
func (s *Service) persist(ctx context.Context, req *ExchangeRequest, history []ai.Turn, replyText string) {
	if req.SessionID == "" {
		return
	}

	updated := append(history,
		ai.Turn{Role: ai.RoleUser, Text: req.UserText},
		ai.Turn{Role: ai.RoleModel, Text: replyText},
	)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := s.sessions.Save(saveCtx, req.SessionID, updated); err != nil {
		slog.Error("failed to persist exchange history",
			"session_id", req.SessionID,
			"channel", string(req.Channel),
			"error", err)
	}
}
