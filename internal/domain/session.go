package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
	SessionExpired SessionStatus = "expired"
)

type ContextFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// SessionContext is injected into the system prompt of every turn.
type SessionContext struct {
	Memory          string        `json:"memory,omitempty"`
	PreviousSummary string        `json:"previous_summary,omitempty"`
	Files           []ContextFile `json:"files,omitempty"`
}

func (c *SessionContext) SystemPrompt() string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Memory != "" {
		parts = append(parts, "# Project Context\n"+c.Memory)
	}
	if c.PreviousSummary != "" {
		parts = append(parts, "# Previous Session Summary\n"+c.PreviousSummary)
	}
	var files []string
	for _, f := range c.Files {
		if f.Name == "" || f.Content == "" {
			continue
		}
		files = append(files, "## "+f.Name+"\n"+f.Content)
	}
	if len(files) > 0 {
		parts = append(parts, "# Reference Files\n"+strings.Join(files, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

type Session struct {
	ID           string          `json:"id"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	Status       SessionStatus   `json:"status"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Context      *SessionContext `json:"context,omitempty"`
	Messages     []Message       `json:"messages"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

func NewSession(provider, model string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		ID:        uuid.NewString(),
		Provider:  provider,
		Model:     model,
		Status:    SessionActive,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}
}

func (s *Session) AddMessage(m Message) {
	s.Messages = append(s.Messages, m)
	if m.Timestamp.After(s.UpdatedAt) {
		s.UpdatedAt = m.Timestamp
	}
}

func (s *Session) AddUserMessage(content string, now time.Time) Message {
	m := NewMessage(RoleUser, content, now)
	s.AddMessage(m)
	return m
}

func (s *Session) AddAssistantMessage(content string, now time.Time) Message {
	m := NewMessage(RoleAssistant, content, now)
	s.AddMessage(m)
	return m
}

// CombinedSystemPrompt joins the explicit system prompt with the rendered context.
func (s *Session) CombinedSystemPrompt() string {
	var parts []string
	if s.SystemPrompt != "" {
		parts = append(parts, s.SystemPrompt)
	}
	if ctx := s.Context.SystemPrompt(); ctx != "" {
		parts = append(parts, ctx)
	}
	return strings.Join(parts, "\n\n")
}

// Conversation returns the transcript in provider order, system prompt first.
func (s *Session) Conversation() []Message {
	out := make([]Message, 0, len(s.Messages)+1)
	if sp := s.CombinedSystemPrompt(); sp != "" {
		out = append(out, Message{Role: RoleSystem, Content: sp})
	}
	return append(out, s.Messages...)
}

func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

func (s *Session) IsActive(now time.Time) bool {
	return s.Status == SessionActive && !s.IsExpired(now)
}

func (s *Session) Close(now time.Time) {
	s.Status = SessionClosed
	s.UpdatedAt = now.UTC()
}

// SetTTL sets expires_at relative to created_at so that expires_at >= created_at always holds.
func (s *Session) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	exp := s.CreatedAt.Add(ttl)
	s.ExpiresAt = &exp
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		cp.ExpiresAt = &exp
	}
	if s.Context != nil {
		ctx := *s.Context
		ctx.Files = append([]ContextFile(nil), s.Context.Files...)
		cp.Context = &ctx
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
