package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	gwerrors "github.com/askdokita/askdokita/internal/errors"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
// It has no web-search capability, so replies are never grounded and the
// tool set is ignored.
type OpenAIProvider struct {
	client *openai.Client
	config *Config
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(cfg *Config) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

func (p *OpenAIProvider) buildMessages(req *GenerateRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Text,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserText,
	})
	return messages
}

// Generate performs a synchronous whole-reply generation.
func (p *OpenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (*Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.config.Model,
		Messages: p.buildMessages(req),
	})
	if err != nil {
		return nil, gwerrors.ProviderFailed("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, gwerrors.ProviderFailed("empty chat response", nil)
	}
	return &Result{Text: resp.Choices[0].Message.Content}, nil
}

// GenerateStream performs a streaming generation.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, req *GenerateRequest) (<-chan Chunk, <-chan error) {
	chunkChan := make(chan Chunk)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    p.config.Model,
			Messages: p.buildMessages(req),
		})
		if err != nil {
			errChan <- gwerrors.ProviderFailed("chat completion stream failed", err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errChan <- gwerrors.ProviderFailed("chat completion stream read failed", err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			select {
			case chunkChan <- Chunk{Text: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				errChan <- gwerrors.ProviderFailed("chat completion stream canceled", ctx.Err())
				return
			}
		}
	}()

	return chunkChan, errChan
}

// Embed generates an embedding vector.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.config.EmbeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
