package dashboard

import (
	"context"
	"errors"
	"time"

	"llmhub/internal/client"
	"llmhub/internal/domain"
	"llmhub/internal/schema"
)

// Chatter sends one chat completion. *client.Client implements it.
type Chatter interface {
	Chat(ctx context.Context, in schema.ChatCompletionRequest, sessionID string) (schema.ChatCompletionResponse, error)
}

type Turn struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
	// Error marks an inline failure notice. It is shown but never sent back.
	Error bool      `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// ChatPanel is the state of one browser's chat screen.
type ChatPanel struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	SessionID string `json:"session_id,omitempty"`
	Turns     []Turn `json:"turns"`
}

// SelectDefaults picks the first provider and its default model when the
// panel has no valid selection yet.
func (p *ChatPanel) SelectDefaults(list []schema.ProviderInfo) {
	if len(list) == 0 {
		return
	}
	for _, info := range list {
		if info.Name == p.Provider {
			if p.Model == "" {
				p.Model = info.DefaultModel
			}
			return
		}
	}
	p.Provider = list[0].Name
	p.Model = list[0].DefaultModel
}

// SetProvider switches provider and resets the model to its default. A hub
// session is bound to one provider, so the session id is dropped too.
func (p *ChatPanel) SetProvider(name string, list []schema.ProviderInfo) bool {
	for _, info := range list {
		if info.Name == name {
			if info.Name != p.Provider {
				p.SessionID = ""
			}
			p.Provider = info.Name
			p.Model = info.DefaultModel
			return true
		}
	}
	return false
}

func (p *ChatPanel) SetModel(model string, list []schema.ProviderInfo) bool {
	for _, info := range list {
		if info.Name != p.Provider {
			continue
		}
		for _, m := range info.Models {
			if m == model {
				p.Model = model
				return true
			}
		}
	}
	return false
}

// Begin appends the user turn and returns the request carrying the whole
// transcript.
func (p *ChatPanel) Begin(text string, now time.Time) schema.ChatCompletionRequest {
	p.Turns = append(p.Turns, Turn{Role: domain.RoleUser, Content: text, At: now})
	msgs := make([]schema.ChatMessage, 0, len(p.Turns))
	for _, t := range p.Turns {
		if t.Error {
			continue
		}
		msgs = append(msgs, schema.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return schema.ChatCompletionRequest{Messages: msgs, Provider: p.Provider, Model: p.Model}
}

// Resolve appends exactly one assistant turn: the reply, or an error notice.
func (p *ChatPanel) Resolve(resp schema.ChatCompletionResponse, err error, now time.Time) {
	if err != nil {
		p.Turns = append(p.Turns, Turn{Role: domain.RoleAssistant, Content: "An error occurred: " + errorText(err), Error: true, At: now})
		return
	}
	p.Turns = append(p.Turns, Turn{Role: domain.RoleAssistant, Content: resp.Response, At: now})
	if resp.SessionID != "" {
		p.SessionID = resp.SessionID
	}
}

func (p *ChatPanel) Send(ctx context.Context, c Chatter, text string, now func() time.Time) {
	req := p.Begin(text, now())
	resp, err := c.Chat(ctx, req, p.SessionID)
	p.Resolve(resp, err, now())
}

func (p *ChatPanel) Clear() {
	p.Turns = nil
	p.SessionID = ""
}

func errorText(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}
