// Package providerstest provides a scripted Provider for tests.
package providerstest

import (
	"context"
	"strings"
	"sync"

	"llmhub/internal/domain"
	"llmhub/internal/providers"
)

type Fake struct {
	providers.Catalog

	mu       sync.Mutex
	Reply    func(req providers.ChatRequest) (string, error)
	Health   domain.ComponentHealth
	Token    domain.TokenStatus
	Requests []providers.ChatRequest
}

// New returns a healthy provider echoing the prompt.
func New(name string, models ...string) *Fake {
	return &Fake{
		Catalog: providers.NewCatalog(name, models, nil, ""),
		Health:  domain.ComponentHealth{Status: domain.StatusHealthy, SupportedModels: models},
		Token:   domain.TokenStatus{Valid: true, Status: "active"},
	}
}

func (f *Fake) AuthMethod() string { return providers.AuthOAuth }

func (f *Fake) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	reply := f.Reply
	f.mu.Unlock()
	if reply == nil {
		return providers.ChatResponse{Text: "echo: " + req.Prompt}, nil
	}
	text, err := reply(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

// ChatStream emits the reply word by word.
func (f *Fake) ChatStream(ctx context.Context, req providers.ChatRequest, emit providers.StreamFunc) error {
	resp, err := f.Chat(ctx, req)
	if err != nil {
		return err
	}
	for i, w := range strings.Fields(resp.Text) {
		if i > 0 {
			w = " " + w
		}
		if err := emit(w); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) HealthCheck(context.Context) domain.ComponentHealth {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Health
}

func (f *Fake) TokenStatus(context.Context) domain.TokenStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Token
}

func (f *Fake) LastRequest() providers.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return providers.ChatRequest{}
	}
	return f.Requests[len(f.Requests)-1]
}

func (f *Fake) SetHealth(h domain.ComponentHealth) {
	f.mu.Lock()
	f.Health = h
	f.mu.Unlock()
}

var _ providers.Provider = (*Fake)(nil)
