package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/apperr"
	"llmhub/internal/domain"
	"llmhub/internal/providers"
)

type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionLow    Compression = "low"
	CompressionMedium Compression = "medium"
	CompressionHigh   Compression = "high"
)

const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

var compressionInstructions = map[Compression]string{
	CompressionLow: "Summarize the conversation below for a future session. Keep every decision, fact, " +
		"code reference and open question. Drop only greetings and repetition.",
	CompressionMedium: "Summarize the conversation below into a concise memory note. Use bullet points " +
		"for key facts and decisions, then list open items.",
	CompressionHigh: "Compress the conversation below into at most five bullet points holding only " +
		"what a future session must know.",
}

// ParseCompression defaults to medium when raw is empty.
func ParseCompression(raw string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(raw))); c {
	case "":
		return CompressionMedium, nil
	case CompressionNone, CompressionLow, CompressionMedium, CompressionHigh:
		return c, nil
	default:
		return "", apperr.InvalidRequest(fmt.Sprintf("invalid compression %q: want none, low, medium or high", raw))
	}
}

// MemoryService exports session transcripts and condenses them into memory
// notes that can seed the context of a later session.
type MemoryService struct {
	sessions *SessionService
	timeout  time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

type MemoryConfig struct {
	Sessions *SessionService
	Timeout  time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
}

func NewMemoryService(cfg MemoryConfig) *MemoryService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MemoryService{
		sessions: cfg.Sessions,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.With().Str("component", "memory").Logger(),
		now:      cfg.Now,
	}
}

type ExportInput struct {
	SessionID   string
	Compression Compression
	// Provider summarizes the transcript. Empty selects the session's provider.
	Provider string
	Format   string
}

type MemoryExport struct {
	SessionID        string
	Compression      Compression
	Format           string
	Content          string
	CompressedMemory string
	Metadata         map[string]any
}

// Export works on closed and expired sessions too.
func (m *MemoryService) Export(ctx context.Context, in ExportInput) (MemoryExport, error) {
	format := strings.ToLower(strings.TrimSpace(in.Format))
	if format == "" {
		format = FormatMarkdown
	}
	if format != FormatMarkdown && format != FormatJSON {
		return MemoryExport{}, apperr.InvalidRequest(fmt.Sprintf("invalid format %q: want markdown or json", in.Format))
	}
	if in.Compression == "" {
		in.Compression = CompressionMedium
	}

	sess, err := m.sessions.Lookup(ctx, in.SessionID)
	if err != nil {
		return MemoryExport{}, err
	}

	out := MemoryExport{
		SessionID:   sess.ID,
		Compression: in.Compression,
		Format:      format,
		Metadata: map[string]any{
			"provider":      sess.Provider,
			"model":         sess.Model,
			"status":        string(sess.Status),
			"message_count": len(sess.Messages),
			"created_at":    sess.CreatedAt.Format(time.RFC3339),
		},
	}

	if in.Compression == CompressionNone {
		content, err := renderTranscript(sess, format)
		if err != nil {
			return MemoryExport{}, err
		}
		out.Content = content
		return out, nil
	}

	summary, used, err := m.compress(ctx, sess, in.Compression, in.Provider)
	if err != nil {
		return MemoryExport{}, err
	}
	out.CompressedMemory = summary
	if used != "" {
		out.Metadata["compressed_with"] = used
	}
	return out, nil
}

type CloseResult struct {
	SessionID        string
	Status           domain.SessionStatus
	CompressedMemory string
}

// CloseWithMemory condenses a live session and marks it closed. With
// compression none the memory is the plain markdown transcript.
func (m *MemoryService) CloseWithMemory(ctx context.Context, id string, level Compression, provider string) (CloseResult, error) {
	sess, err := m.sessions.Get(ctx, id)
	if err != nil {
		return CloseResult{}, err
	}
	if level == "" {
		level = CompressionMedium
	}

	var memory string
	if level == CompressionNone {
		memory = Transcript(sess)
	} else if memory, _, err = m.compress(ctx, sess, level, provider); err != nil {
		return CloseResult{}, err
	}

	sess.Close(m.now())
	closed, err := m.sessions.Update(ctx, sess)
	if err != nil {
		return CloseResult{}, err
	}
	m.logger.Info().Str("session_id", id).Str("compression", string(level)).Msg("session closed")
	return CloseResult{SessionID: closed.ID, Status: closed.Status, CompressedMemory: memory}, nil
}

func (m *MemoryService) compress(ctx context.Context, sess *domain.Session, level Compression, provider string) (string, string, error) {
	if len(sess.Messages) == 0 {
		return "", "", nil
	}
	instruction, ok := compressionInstructions[level]
	if !ok {
		return "", "", apperr.InvalidRequest(fmt.Sprintf("invalid compression %q", level))
	}
	if strings.TrimSpace(provider) == "" {
		provider = sess.Provider
	}
	p, err := m.sessions.Provider(provider)
	if err != nil {
		return "", "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	resp, err := p.Chat(callCtx, providers.ChatRequest{
		Model:  p.DefaultModel(),
		Prompt: instruction + "\n\n" + Transcript(sess),
	})
	if err != nil {
		if ctx.Err() == nil && callCtx.Err() != nil {
			return "", "", apperr.ProviderTimeout(p.Name(), m.timeout)
		}
		if _, ok := apperr.As(err); ok {
			return "", "", err
		}
		return "", "", apperr.ProviderError(p.Name(), err.Error(), err)
	}
	return strings.TrimSpace(resp.Text), p.Name(), nil
}

// Transcript renders the session as markdown.
func Transcript(sess *domain.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sess.ID)
	fmt.Fprintf(&b, "- Provider: %s\n- Model: %s\n- Created: %s\n", sess.Provider, sess.Model, sess.CreatedAt.Format(time.RFC3339))
	if sp := sess.CombinedSystemPrompt(); sp != "" {
		b.WriteString("\n## System\n\n")
		b.WriteString(sp)
		b.WriteString("\n")
	}
	for _, msg := range sess.Messages {
		title := "User"
		switch msg.Role {
		case domain.RoleAssistant:
			title = "Assistant"
		case domain.RoleSystem:
			title = "System"
		}
		fmt.Fprintf(&b, "\n## %s", title)
		if !msg.Timestamp.IsZero() {
			fmt.Fprintf(&b, " (%s)", msg.Timestamp.Format(time.RFC3339))
		}
		b.WriteString("\n\n")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func renderTranscript(sess *domain.Session, format string) (string, error) {
	if format == FormatMarkdown {
		return Transcript(sess), nil
	}
	raw, err := json.MarshalIndent(struct {
		SessionID    string           `json:"session_id"`
		Provider     string           `json:"provider"`
		Model        string           `json:"model"`
		SystemPrompt string           `json:"system_prompt,omitempty"`
		Messages     []domain.Message `json:"messages"`
	}{sess.ID, sess.Provider, sess.Model, sess.CombinedSystemPrompt(), sess.Messages}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	return string(raw), nil
}
