package providers

import (
	"context"
	"slices"

	"llmhub/internal/domain"
)

const (
	AuthOAuth  = "oauth"
	AuthAPIKey = "api_key"
	AuthNone   = "none"
)

type ChatRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	// History holds earlier user/assistant turns, oldest first.
	History     []domain.Message
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	Text string
}

// StreamFunc receives response chunks in order. A non-nil error stops the stream.
type StreamFunc func(chunk string) error

type Provider interface {
	Name() string
	AuthMethod() string
	SupportedModels() []string
	DefaultModel() string
	ResolveModel(model string) string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest, emit StreamFunc) error
	HealthCheck(ctx context.Context) domain.ComponentHealth
	TokenStatus(ctx context.Context) domain.TokenStatus
}

// Supports reports whether model, after alias resolution, is served by p.
func Supports(p Provider, model string) bool {
	return slices.Contains(p.SupportedModels(), p.ResolveModel(model))
}

// StreamViaChat adapts a non-streaming backend by emitting the full reply as one chunk.
func StreamViaChat(ctx context.Context, p Provider, req ChatRequest, emit StreamFunc) error {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return err
	}
	if resp.Text == "" {
		return nil
	}
	return emit(resp.Text)
}
