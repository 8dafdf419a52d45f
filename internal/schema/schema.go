// Package schema holds the JSON shapes exchanged between the hub API and its clients.
package schema

import (
	"time"

	"llmhub/internal/domain"
)

type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Docs    string `json:"docs,omitempty"`
}

type HealthResponse struct {
	Status    domain.HealthStatus `json:"status"`
	Version   string              `json:"version"`
	Timestamp time.Time           `json:"timestamp"`
}

type DetailedHealthResponse struct {
	Status     domain.HealthStatus               `json:"status"`
	Version    string                            `json:"version"`
	Timestamp  time.Time                         `json:"timestamp"`
	Components map[string]domain.ComponentHealth `json:"components"`
}

// TokenHealthResponse maps provider name to its token status. A nil entry
// marks a known provider that is not enabled.
type TokenHealthResponse map[string]*domain.TokenStatus

type ProviderInfo struct {
	Name         string   `json:"name"`
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
}

type ProviderDetail struct {
	Name         string              `json:"name"`
	Status       domain.HealthStatus `json:"status"`
	Models       []string            `json:"models"`
	DefaultModel string              `json:"default_model"`
	AuthMethod   string              `json:"auth_method"`
	Aliases      map[string]string   `json:"aliases,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type ChatMessage struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
}

type ChatCompletionRequest struct {
	Messages []ChatMessage `json:"messages"`
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
	// Timeout is in seconds. Zero selects the server default.
	Timeout float64 `json:"timeout,omitempty"`
}

type ChatCompletionResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

const (
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

// StreamEvent is the data payload of one SSE event.
type StreamEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

type SessionContext struct {
	Memory          string               `json:"memory,omitempty"`
	PreviousSummary string               `json:"previous_summary,omitempty"`
	Files           []domain.ContextFile `json:"files,omitempty"`
}

type CreateSessionRequest struct {
	Provider     string          `json:"provider"`
	Model        string          `json:"model,omitempty"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Context      *SessionContext `json:"context,omitempty"`
	// TTL is in seconds. Zero selects the server default.
	TTL      int            `json:"ttl,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SessionResponse struct {
	SessionID       string                 `json:"session_id"`
	Provider        string                 `json:"provider"`
	Model           string                 `json:"model"`
	Status          domain.SessionStatus   `json:"status"`
	SupportedModels []string               `json:"supported_models"`
	CreatedAt       time.Time              `json:"created_at"`
	ExpiresAt       *time.Time             `json:"expires_at,omitempty"`
	LastActivity    *time.Time             `json:"last_activity,omitempty"`
	MessageCount    int                    `json:"message_count"`
	Messages        []ChatMessage          `json:"messages,omitempty"`
	SystemPrompt    string                 `json:"system_prompt,omitempty"`
	Context         *domain.SessionContext `json:"context,omitempty"`
	Metadata        map[string]any         `json:"metadata,omitempty"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type DeleteSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

type CloseSessionRequest struct {
	Compression string `json:"compression,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

type CloseSessionResponse struct {
	Success          bool                 `json:"success"`
	SessionID        string               `json:"session_id"`
	Status           domain.SessionStatus `json:"status"`
	CompressedMemory string               `json:"compressed_memory"`
}

type SessionMemoryResponse struct {
	SessionID        string         `json:"session_id"`
	Compression      string         `json:"compression"`
	Format           string         `json:"format"`
	Content          string         `json:"content,omitempty"`
	CompressedMemory string         `json:"compressed_memory,omitempty"`
	Metadata         map[string]any `json:"metadata"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Detail ErrorDetail `json:"detail"`
}

// FromMessages converts domain messages to their wire form.
func FromMessages(msgs []domain.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		ts := m.Timestamp
		cm := ChatMessage{Role: m.Role, Content: m.Content}
		if !ts.IsZero() {
			cm.Timestamp = &ts
		}
		out = append(out, cm)
	}
	return out
}

// ToMessages converts wire messages to domain messages, stamping missing timestamps with now.
func ToMessages(msgs []ChatMessage, now time.Time) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		ts := now
		if m.Timestamp != nil {
			ts = *m.Timestamp
		}
		out = append(out, domain.Message{Role: m.Role, Content: m.Content, Timestamp: ts.UTC()})
	}
	return out
}

// FromSession renders a session. Messages are included only when withMessages is set.
func FromSession(s *domain.Session, supported []string, withMessages bool) SessionResponse {
	resp := SessionResponse{
		SessionID:       s.ID,
		Provider:        s.Provider,
		Model:           s.Model,
		Status:          s.Status,
		SupportedModels: supported,
		CreatedAt:       s.CreatedAt,
		ExpiresAt:       s.ExpiresAt,
		MessageCount:    len(s.Messages),
		SystemPrompt:    s.SystemPrompt,
		Context:         s.Context,
		Metadata:        s.Metadata,
	}
	if resp.SupportedModels == nil {
		resp.SupportedModels = []string{}
	}
	if !s.UpdatedAt.IsZero() {
		last := s.UpdatedAt
		resp.LastActivity = &last
	}
	if withMessages {
		resp.Messages = FromMessages(s.Messages)
	}
	return resp
}
