package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gwerrors "github.com/askdokita/askdokita/internal/errors"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	// maxStreamLineSize bounds a single SSE data line. Grounded responses
	// carry sizeable groundingMetadata payloads.
	maxStreamLineSize = 1 << 20
)

// GeminiProvider talks to the Gemini REST API directly. Streaming uses the
// streamGenerateContent endpoint with SSE framing.
type GeminiProvider struct {
	client *http.Client
	config *Config
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(cfg *Config) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &GeminiProvider{
		client: &http.Client{Timeout: timeout},
		config: cfg,
	}
}

// Wire types for the generateContent family of endpoints.

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiCandidate struct {
	Content           geminiContent   `json:"content"`
	FinishReason      string          `json:"finishReason,omitempty"`
	GroundingMetadata json.RawMessage `json:"groundingMetadata,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (p *GeminiProvider) buildRequest(req *GenerateRequest) *geminiRequest {
	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, geminiContent{
			Role:  turn.Role,
			Parts: []geminiPart{{Text: turn.Text}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  RoleUser,
		Parts: []geminiPart{{Text: req.UserText}},
	})

	out := &geminiRequest{Contents: contents}
	if req.SystemInstruction != "" {
		out.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemInstruction}},
		}
	}
	if req.Tools.WebSearch {
		out.Tools = append(out.Tools, geminiTool{GoogleSearch: &struct{}{}})
	}
	return out
}

func (p *GeminiProvider) endpoint(model, verb, query string) string {
	url := fmt.Sprintf("%s/v1beta/models/%s:%s", strings.TrimRight(p.config.BaseURL, "/"), model, verb)
	if query != "" {
		url += "?" + query
	}
	return url
}

func (p *GeminiProvider) post(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(excerpt))
	}
	return resp, nil
}

// Generate performs a synchronous whole-reply generation.
func (p *GeminiProvider) Generate(ctx context.Context, req *GenerateRequest) (*Result, error) {
	resp, err := p.post(ctx, p.endpoint(p.config.Model, "generateContent", ""), p.buildRequest(req))
	if err != nil {
		return nil, gwerrors.ProviderFailed("gemini generateContent failed", err)
	}
	defer resp.Body.Close()

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gwerrors.ProviderFailed("failed to decode gemini response", err)
	}
	if len(out.Candidates) == 0 {
		return nil, gwerrors.ProviderFailed("empty gemini response", nil)
	}

	candidate := out.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	return &Result{
		Text:     text.String(),
		Grounded: hasGrounding(candidate),
	}, nil
}

// GenerateStream performs a streaming generation over SSE.
func (p *GeminiProvider) GenerateStream(ctx context.Context, req *GenerateRequest) (<-chan Chunk, <-chan error) {
	chunkChan := make(chan Chunk)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		resp, err := p.post(ctx, p.endpoint(p.config.Model, "streamGenerateContent", "alt=sse"), p.buildRequest(req))
		if err != nil {
			errChan <- gwerrors.ProviderFailed("gemini streamGenerateContent failed", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)
		for scanner.Scan() {
			chunk, ok, err := parseStreamLine(scanner.Bytes())
			if err != nil {
				errChan <- gwerrors.ProviderFailed("failed to decode gemini stream chunk", err)
				return
			}
			if !ok {
				continue
			}
			select {
			case chunkChan <- chunk:
			case <-ctx.Done():
				errChan <- gwerrors.ProviderFailed("gemini stream canceled", ctx.Err())
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errChan <- gwerrors.ProviderFailed("gemini stream read failed", err)
		}
	}()

	return chunkChan, errChan
}

// parseStreamLine decodes one SSE line. Non-data lines (blank keep-alives,
// comments) report ok=false.
func parseStreamLine(line []byte) (Chunk, bool, error) {
	const prefix = "data: "
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || !bytes.HasPrefix(trimmed, []byte(prefix)) {
		return Chunk{}, false, nil
	}
	payload := trimmed[len(prefix):]

	var out geminiResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return Chunk{}, false, err
	}
	if len(out.Candidates) == 0 {
		return Chunk{}, false, nil
	}

	candidate := out.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	return Chunk{
		Text:     text.String(),
		Grounded: hasGrounding(candidate),
	}, true, nil
}

// hasGrounding reports whether the candidate carries grounding metadata.
func hasGrounding(c geminiCandidate) bool {
	return len(c.GroundingMetadata) > 0 && !bytes.Equal(c.GroundingMetadata, []byte("null"))
}

// Embed generates an embedding vector via the embedContent endpoint.
func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := &geminiEmbedRequest{
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	resp, err := p.post(ctx, p.endpoint(p.config.EmbeddingModel, "embedContent", ""), payload)
	if err != nil {
		return nil, fmt.Errorf("gemini embedContent failed: %w", err)
	}
	defer resp.Body.Close()

	var out geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode gemini embedding: %w", err)
	}
	if len(out.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return out.Embedding.Values, nil
}
