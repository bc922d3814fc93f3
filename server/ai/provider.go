// Package ai provides the generation-provider clients used by the gateway.
// Two backends are supported: the native Gemini REST API (the default,
// and the only one that reports web-search grounding) and any
// OpenAI-compatible endpoint.
package ai

import (
	"context"
	"fmt"
	"time"
)

// Conversation roles as the providers understand them.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is a single conversation turn. Immutable once created.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ToolSet enumerates the provider tool capabilities passed through with a
// generation request. Web search is the grounding mechanism actually wired
// into the call path; the document index is a separate, independent
// capability (see server/retrieval).
type ToolSet struct {
	WebSearch bool
}

// GenerateRequest is the provider input for one exchange.
type GenerateRequest struct {
	History           []Turn
	UserText          string
	SystemInstruction string
	Tools             ToolSet
}

// Result is a whole-reply generation result.
type Result struct {
	Text     string
	Grounded bool
}

// Chunk is one increment of a streaming generation. Grounded reports
// whether the enclosing response unit carried grounding metadata; callers
// should OR the flag across chunks.
type Chunk struct {
	Text     string
	Grounded bool
}

// Generator is the generation service interface.
type Generator interface {
	// Generate performs a synchronous whole-reply generation.
	Generate(ctx context.Context, req *GenerateRequest) (*Result, error)

	// GenerateStream performs a streaming generation. The chunk channel is
	// closed at end of stream; at most one error is delivered on the error
	// channel.
	GenerateStream(ctx context.Context, req *GenerateRequest) (<-chan Chunk, <-chan error)
}

// Embedder generates embedding vectors for free text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds the provider configuration.
type Config struct {
	Provider       string // "gemini" or "openai"
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

// NewGenerator creates a Generator for the configured provider.
func NewGenerator(cfg *Config) (Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}

// NewEmbedder creates an Embedder for the configured provider.
func NewEmbedder(cfg *Config) (Embedder, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
