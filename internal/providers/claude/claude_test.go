package claude

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"llmhub/internal/apperr"
	"llmhub/internal/domain"
	"llmhub/internal/providers"
	"llmhub/internal/providers/cliexec"
)

func TestCatalogAliases(t *testing.T) {
	c := New(Config{DefaultModel: "opus", Exec: &cliexec.Fake{}})
	if c.DefaultModel() != "claude-opus-4-5-20251101" {
		t.Fatalf("default = %s", c.DefaultModel())
	}
	if c.ResolveModel("Sonnet") != "claude-sonnet-4-5-20250929" {
		t.Fatalf("alias not resolved")
	}
	if !providers.Supports(c, "haiku") || providers.Supports(c, "gpt-4") {
		t.Fatalf("unexpected support check")
	}

	fallback := New(Config{DefaultModel: "unknown", Exec: &cliexec.Fake{}})
	if fallback.DefaultModel() != models[0] {
		t.Fatalf("unknown default should fall back to first model, got %s", fallback.DefaultModel())
	}
}

func TestChatBuildsCommand(t *testing.T) {
	fake := &cliexec.Fake{Stdout: `{"type":"result","is_error":false,"result":"hi there"}`}
	c := New(Config{OAuthToken: "tok", WorkDir: "/tmp", Exec: fake})

	resp, err := c.Chat(context.Background(), providers.ChatRequest{
		Model:        "sonnet",
		SystemPrompt: "be brief",
		Prompt:       "hello",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "hi there" {
		t.Fatalf("text = %q", resp.Text)
	}
	call := fake.Calls[0]
	want := []string{"-p", "hello", "--output-format", "json", "--model", "claude-sonnet-4-5-20250929", "--system-prompt", "be brief"}
	if !slices.Equal(call.Args, want) {
		t.Fatalf("args = %v", call.Args)
	}
	if call.Dir != "/tmp" || !slices.Contains(call.Env, "CLAUDE_CODE_OAUTH_TOKEN=tok") {
		t.Fatalf("unexpected env/dir: %s", call.Dir)
	}
}

func TestChatFoldsHistory(t *testing.T) {
	fake := &cliexec.Fake{Stdout: `{"result":"ok"}`}
	c := New(Config{Exec: fake})
	now := time.Now()
	_, err := c.Chat(context.Background(), providers.ChatRequest{
		Prompt: "and now?",
		History: []domain.Message{
			domain.NewMessage(domain.RoleUser, "first", now),
			domain.NewMessage(domain.RoleAssistant, "reply", now),
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	prompt := fake.Calls[0].Args[1]
	if !strings.Contains(prompt, "User: first") || !strings.HasSuffix(prompt, "User: and now?") {
		t.Fatalf("history not folded: %q", prompt)
	}
}

func TestChatErrors(t *testing.T) {
	c := New(Config{Exec: &cliexec.Fake{Stdout: `{"is_error":true,"result":"overloaded"}`}})
	_, err := c.Chat(context.Background(), providers.ChatRequest{Prompt: "x"})
	if apperr.CodeOf(err) != apperr.CodeProviderError {
		t.Fatalf("expected provider error, got %v", err)
	}

	c = New(Config{OAuthToken: "secret-tok", Exec: &cliexec.Fake{Err: &cliexec.ExitError{Code: 1, Stderr: "OAuth token has expired"}}})
	_, err = c.Chat(context.Background(), providers.ChatRequest{Prompt: "x"})
	if apperr.CodeOf(err) != apperr.CodeTokenExpired {
		t.Fatalf("expected token expired, got %v", err)
	}

	c = New(Config{Exec: &cliexec.Fake{Stdout: "not json"}})
	_, err = c.Chat(context.Background(), providers.ChatRequest{Prompt: "x"})
	if apperr.CodeOf(err) != apperr.CodeProviderError {
		t.Fatalf("expected provider error for bad json, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = New(Config{Exec: &cliexec.Fake{Err: errors.New("killed")}})
	if _, err = c.Chat(ctx, providers.ChatRequest{Prompt: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestChatStream(t *testing.T) {
	fake := &cliexec.Fake{Stdout: strings.Join([]string{
		`{"type":"system","subtype":"init"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"Hel"}]}}`,
		`garbage`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use"},{"type":"text","text":"lo"}]}}`,
		`{"type":"result","is_error":false,"result":"Hello"}`,
	}, "\n")}
	c := New(Config{Exec: fake})

	var chunks []string
	err := c.ChatStream(context.Background(), providers.ChatRequest{Prompt: "hi"}, func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !slices.Equal(chunks, []string{"Hel", "lo"}) {
		t.Fatalf("chunks = %v", chunks)
	}
	if !slices.Contains(fake.Calls[0].Args, "stream-json") || !slices.Contains(fake.Calls[0].Args, "--verbose") {
		t.Fatalf("stream flags missing: %v", fake.Calls[0].Args)
	}
}

func TestHealthAndToken(t *testing.T) {
	c := New(Config{OAuthToken: "tok", Exec: &cliexec.Fake{Stdout: "2.0.1 (Claude Code)"}})
	h := c.HealthCheck(context.Background())
	if h.Status != domain.StatusHealthy || h.LatencyMS == nil || len(h.SupportedModels) != 3 {
		t.Fatalf("unexpected health: %+v", h)
	}
	if st := c.TokenStatus(context.Background()); !st.Valid || st.Status != "active" {
		t.Fatalf("unexpected token: %+v", st)
	}

	down := New(Config{OAuthToken: "tok", Exec: &cliexec.Fake{Stderr: "command not found", Err: errors.New("exit 127")}})
	h = down.HealthCheck(context.Background())
	if h.Status != domain.StatusUnhealthy || h.Error != "command not found" {
		t.Fatalf("unexpected health: %+v", h)
	}

	if st := New(Config{Exec: &cliexec.Fake{}}).TokenStatus(context.Background()); st.Valid || st.Error == "" {
		t.Fatalf("missing token should be invalid: %+v", st)
	}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(5 * 24 * time.Hour)
	withExp := New(Config{OAuthToken: "tok", TokenExpiresAt: &exp, Now: func() time.Time { return now }, Exec: &cliexec.Fake{}})
	st := withExp.TokenStatus(context.Background())
	if !st.Valid || st.DaysRemaining == nil || *st.DaysRemaining != 5 {
		t.Fatalf("unexpected expiry status: %+v", st)
	}
}
