// Package service implements the session, chat and memory operations served by the hub API.
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
	"llmhub/internal/session"
)

type SessionService struct {
	store      session.Store
	providers  *providers.Registry
	defaultTTL time.Duration
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type SessionConfig struct {
	Store      session.Store
	Providers  *providers.Registry
	DefaultTTL time.Duration
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

func NewSessionService(cfg SessionConfig) *SessionService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionService{
		store:      cfg.Store,
		providers:  cfg.Providers,
		defaultTTL: cfg.DefaultTTL,
		logger:     cfg.Logger.With().Str("component", "sessions").Logger(),
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
}

type CreateSessionInput struct {
	Provider     string
	Model        string
	SystemPrompt string
	Context      *domain.SessionContext
	// TTL of zero selects the service default.
	TTL      time.Duration
	Metadata map[string]any
}

func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (*domain.Session, error) {
	name := strings.ToLower(strings.TrimSpace(in.Provider))
	if name == "" {
		return nil, apperr.InvalidRequest("provider is required")
	}
	p, ok := s.providers.Get(name)
	if !ok {
		return nil, apperr.InvalidRequest("Unknown provider: " + name)
	}
	if in.TTL < 0 {
		return nil, apperr.InvalidRequest("ttl must be positive")
	}
	model, err := resolveModel(p, in.Model)
	if err != nil {
		return nil, err
	}

	sess := domain.NewSession(p.Name(), model, s.now())
	sess.SystemPrompt = in.SystemPrompt
	sess.Context = in.Context
	if in.Metadata != nil {
		sess.Metadata = in.Metadata
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	sess.SetTTL(ttl)

	created, err := s.store.Create(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.sessionCreated()
	s.logger.Info().Str("session_id", created.ID).Str("provider", created.Provider).Str("model", created.Model).Msg("session created")
	return created, nil
}

// Get returns a live session. Missing ids map to SESSION_NOT_FOUND, expired
// or closed sessions to SESSION_EXPIRED.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive(s.now()) {
		return nil, apperr.SessionExpired(id)
	}
	return sess, nil
}

// Lookup returns the stored session whatever its status.
func (s *SessionService) Lookup(ctx context.Context, id string) (*domain.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.SessionNotFound(id)
	}
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, apperr.SessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// GetOrNone returns nil when id is empty or unknown. A closed or expired
// session is still an error: it keeps SESSION_EXPIRED.
func (s *SessionService) GetOrNone(ctx context.Context, id string) (*domain.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	sess, err := s.Get(ctx, id)
	if apperr.CodeOf(err) == apperr.CodeSessionNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionService) Update(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	updated, err := s.store.Update(ctx, sess)
	if errors.Is(err, session.ErrNotFound) {
		return nil, apperr.SessionNotFound(sess.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	return updated, nil
}

func (s *SessionService) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	if deleted {
		if s.metrics != nil {
			s.metrics.SessionsDeleted.Inc()
		}
		s.logger.Info().Str("session_id", id).Msg("session deleted")
	}
	return deleted, nil
}

func (s *SessionService) Close(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Close(s.now())
	return s.Update(ctx, sess)
}

func (s *SessionService) List(ctx context.Context, limit, offset int) ([]*domain.Session, error) {
	items, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return items, nil
}

func (s *SessionService) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *SessionService) ValidateProviderMatch(sess *domain.Session, requested string) error {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested != "" && requested != sess.Provider {
		return apperr.ProviderMismatch(sess.Provider, requested)
	}
	return nil
}

// ValidateModel resolves requested (or the session model when empty) against
// the session's provider.
func (s *SessionService) ValidateModel(sess *domain.Session, requested string) (string, error) {
	p, err := s.Provider(sess.Provider)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(requested) == "" {
		requested = sess.Model
	}
	return resolveModel(p, requested)
}

func (s *SessionService) Provider(name string) (providers.Provider, error) {
	p, ok := s.providers.Get(name)
	if !ok {
		return nil, apperr.ProviderNotFound(name)
	}
	return p, nil
}

func (s *SessionService) Providers() []providers.Provider {
	return s.providers.List()
}

// SupportedModels returns the models of the named provider, or nil when it is not enabled.
func (s *SessionService) SupportedModels(name string) []string {
	if p, ok := s.providers.Get(name); ok {
		return p.SupportedModels()
	}
	return nil
}

func (s *SessionService) sessionCreated() {
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
}

func resolveModel(p providers.Provider, requested string) (string, error) {
	model := p.ResolveModel(requested)
	if !providers.Supports(p, model) {
		return "", apperr.InvalidModel(model, p.Name(), p.SupportedModels())
	}
	return model, nil
}
