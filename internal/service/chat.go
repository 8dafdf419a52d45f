package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/apperr"
	"llmhub/internal/domain"
	"llmhub/internal/metrics"
	"llmhub/internal/providers"
)

type ChatService struct {
	sessions        *SessionService
	defaultProvider string
	timeout         time.Duration
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

type ChatConfig struct {
	Sessions *SessionService
	// DefaultProvider is used when neither the request nor a session names one.
	DefaultProvider string
	Timeout         time.Duration
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

func NewChatService(cfg ChatConfig) *ChatService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ChatService{
		sessions:        cfg.Sessions,
		defaultProvider: cfg.DefaultProvider,
		timeout:         cfg.Timeout,
		logger:          cfg.Logger.With().Str("component", "chat").Logger(),
		metrics:         cfg.Metrics,
		now:             cfg.Now,
	}
}

type ChatInput struct {
	Prompt       string
	Provider     string
	Model        string
	SessionID    string
	SystemPrompt string
	// History is used only when no live session is bound.
	History []domain.Message
	Timeout time.Duration
}

type ChatResult struct {
	Response  string
	SessionID string
	Provider  string
	Model     string
	// Created is set when this call started a new session.
	Created bool
}

// turn is one prepared exchange. The session is written only after the
// provider answered.
type turn struct {
	provider providers.Provider
	session  *domain.Session
	created  bool
	req      providers.ChatRequest
	timeout  time.Duration
}

func (c *ChatService) Chat(ctx context.Context, in ChatInput) (ChatResult, error) {
	t, err := c.prepare(ctx, in)
	if err != nil {
		return ChatResult{}, err
	}

	started := c.now()
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	resp, err := t.provider.Chat(callCtx, t.req)
	if err != nil {
		err = c.providerFailure(ctx, callCtx, t, err)
		c.metrics.ObserveChat(t.provider.Name(), apperr.CodeOf(err), c.now().Sub(started))
		return ChatResult{}, err
	}
	c.metrics.ObserveChat(t.provider.Name(), "ok", c.now().Sub(started))

	return c.commit(ctx, t, resp.Text)
}

// ChatStream forwards provider chunks to emit and returns the final result
// once the stream is complete.
func (c *ChatService) ChatStream(ctx context.Context, in ChatInput, emit providers.StreamFunc) (ChatResult, error) {
	t, err := c.prepare(ctx, in)
	if err != nil {
		return ChatResult{}, err
	}

	started := c.now()
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var full strings.Builder
	err = t.provider.ChatStream(callCtx, t.req, func(chunk string) error {
		full.WriteString(chunk)
		return emit(chunk)
	})
	if err != nil {
		err = c.providerFailure(ctx, callCtx, t, err)
		c.metrics.ObserveChat(t.provider.Name(), apperr.CodeOf(err), c.now().Sub(started))
		return ChatResult{}, err
	}
	c.metrics.ObserveChat(t.provider.Name(), "ok", c.now().Sub(started))

	return c.commit(ctx, t, full.String())
}

// MessagesInput turns an OpenAI-style message list into a ChatInput: the
// last user message is the prompt, the first system message the system
// prompt, and everything before the prompt the history.
func MessagesInput(msgs []domain.Message) (ChatInput, error) {
	if len(msgs) == 0 {
		return ChatInput{}, apperr.InvalidRequest("Messages cannot be empty")
	}
	last := -1
	for i, m := range msgs {
		if !m.Role.Valid() {
			return ChatInput{}, apperr.InvalidRequest(fmt.Sprintf("invalid role %q", m.Role))
		}
		if m.Role == domain.RoleUser {
			last = i
		}
	}
	if last < 0 {
		return ChatInput{}, apperr.InvalidRequest("At least one user message is required")
	}

	in := ChatInput{Prompt: msgs[last].Content}
	for i, m := range msgs {
		if m.Role == domain.RoleSystem {
			if in.SystemPrompt == "" {
				in.SystemPrompt = m.Content
			}
			continue
		}
		if i < last {
			in.History = append(in.History, m)
		}
	}
	return in, nil
}

func (c *ChatService) ChatWithMessages(ctx context.Context, msgs []domain.Message, provider, model, sessionID string, timeout time.Duration) (ChatResult, error) {
	in, err := MessagesInput(msgs)
	if err != nil {
		return ChatResult{}, err
	}
	in.Provider = provider
	in.Model = model
	in.SessionID = sessionID
	in.Timeout = timeout
	return c.Chat(ctx, in)
}

func (c *ChatService) prepare(ctx context.Context, in ChatInput) (*turn, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, apperr.InvalidRequest("prompt is empty")
	}
	t := &turn{timeout: in.Timeout}
	if t.timeout <= 0 {
		t.timeout = c.timeout
	}

	sess, err := c.sessions.GetOrNone(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	if sess != nil {
		if err := c.sessions.ValidateProviderMatch(sess, in.Provider); err != nil {
			return nil, err
		}
		model, err := c.sessions.ValidateModel(sess, in.Model)
		if err != nil {
			return nil, err
		}
		p, err := c.sessions.Provider(sess.Provider)
		if err != nil {
			return nil, err
		}
		system := sess.CombinedSystemPrompt()
		if system == "" {
			system = in.SystemPrompt
		}
		t.provider = p
		t.session = sess
		t.req = providers.ChatRequest{
			Model:        model,
			SystemPrompt: system,
			Prompt:       in.Prompt,
			History:      append([]domain.Message(nil), sess.Messages...),
		}
		return t, nil
	}

	p, err := c.pickProvider(in.Provider)
	if err != nil {
		return nil, err
	}
	model, err := resolveModel(p, in.Model)
	if err != nil {
		return nil, err
	}

	sess = domain.NewSession(p.Name(), model, c.now())
	sess.SystemPrompt = in.SystemPrompt
	sess.SetTTL(c.sessions.defaultTTL)
	for _, m := range in.History {
		if m.Role != domain.RoleSystem {
			sess.AddMessage(m)
		}
	}
	t.provider = p
	t.session = sess
	t.created = true
	t.req = providers.ChatRequest{
		Model:        model,
		SystemPrompt: in.SystemPrompt,
		Prompt:       in.Prompt,
		History:      append([]domain.Message(nil), sess.Messages...),
	}
	return t, nil
}

func (c *ChatService) pickProvider(requested string) (providers.Provider, error) {
	if strings.TrimSpace(requested) != "" {
		return c.sessions.Provider(requested)
	}
	p, ok := c.sessions.providers.Default(c.defaultProvider)
	if !ok {
		return nil, apperr.ProviderNotFound(c.defaultProvider)
	}
	return p, nil
}

func (c *ChatService) commit(ctx context.Context, t *turn, reply string) (ChatResult, error) {
	now := c.now()
	t.session.AddUserMessage(t.req.Prompt, now)
	t.session.AddAssistantMessage(reply, now)

	var err error
	if t.created {
		_, err = c.sessions.store.Create(ctx, t.session)
		if err == nil {
			c.sessions.sessionCreated()
		}
	} else {
		_, err = c.sessions.Update(ctx, t.session)
	}
	if err != nil {
		return ChatResult{}, fmt.Errorf("save session %s: %w", t.session.ID, err)
	}

	c.logger.Info().
		Str("session_id", t.session.ID).
		Str("provider", t.provider.Name()).
		Str("model", t.req.Model).
		Bool("new_session", t.created).
		Int("messages", len(t.session.Messages)).
		Msg("chat completed")

	return ChatResult{
		Response:  reply,
		SessionID: t.session.ID,
		Provider:  t.provider.Name(),
		Model:     t.req.Model,
		Created:   t.created,
	}, nil
}

// providerFailure maps a provider error to an API error. A deadline on the
// call context becomes PROVIDER_TIMEOUT; cancellation by the caller passes through.
func (c *ChatService) providerFailure(parent, call context.Context, t *turn, err error) error {
	name := t.provider.Name()
	c.logger.Error().Err(err).Str("provider", name).Str("model", t.req.Model).Msg("provider call failed")
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(call.Err(), context.DeadlineExceeded) {
		return apperr.ProviderTimeout(name, t.timeout)
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.ProviderError(name, err.Error(), err)
}
