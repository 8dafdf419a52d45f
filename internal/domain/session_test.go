package domain

import (
	"strings"
	"testing"
	"time"
)

func TestSessionContextSystemPrompt(t *testing.T) {
	c := &SessionContext{
		Memory:          "repo uses go",
		PreviousSummary: "we fixed the parser",
		Files: []ContextFile{
			{Name: "main.go", Content: "package main"},
			{Name: "empty.txt"},
		},
	}
	got := c.SystemPrompt()
	for _, want := range []string{"# Project Context\nrepo uses go", "# Previous Session Summary\nwe fixed the parser", "# Reference Files\n## main.go\npackage main"} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "empty.txt") {
		t.Fatalf("empty file should be skipped: %s", got)
	}
	if (*SessionContext)(nil).SystemPrompt() != "" {
		t.Fatalf("nil context should render empty")
	}
}

func TestCombinedSystemPromptAndConversation(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSession("claude", "sonnet", now)
	s.SystemPrompt = "be brief"
	s.Context = &SessionContext{Memory: "m"}
	s.AddUserMessage("hi", now.Add(time.Second))
	s.AddAssistantMessage("hello", now.Add(2*time.Second))

	conv := s.Conversation()
	if len(conv) != 3 {
		t.Fatalf("conversation len = %d, want 3", len(conv))
	}
	if conv[0].Role != RoleSystem || conv[0].Content != "be brief\n\n# Project Context\nm" {
		t.Fatalf("unexpected system turn: %+v", conv[0])
	}
	if conv[1].Role != RoleUser || conv[2].Role != RoleAssistant {
		t.Fatalf("unexpected order: %+v", conv)
	}
	if !s.UpdatedAt.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("updated_at = %v", s.UpdatedAt)
	}
}

func TestSessionActivity(t *testing.T) {
	now := time.Now().UTC()
	s := NewSession("gemini", "gemini-2.5-pro", now)
	s.SetTTL(time.Minute)
	if s.ExpiresAt.Before(s.CreatedAt) {
		t.Fatalf("expires_at before created_at")
	}
	if !s.IsActive(now) {
		t.Fatalf("new session should be active")
	}
	if s.IsActive(now.Add(2 * time.Minute)) {
		t.Fatalf("session past expiry should be inactive")
	}
	s.Close(now)
	if s.Status != SessionClosed || s.IsActive(now) {
		t.Fatalf("closed session should be inactive")
	}
}

func TestOverall(t *testing.T) {
	h := ComponentHealth{Status: StatusHealthy}
	u := ComponentHealth{Status: StatusUnhealthy}
	cases := []struct {
		name string
		in   map[string]ComponentHealth
		want HealthStatus
	}{
		{"empty", map[string]ComponentHealth{}, StatusHealthy},
		{"all healthy", map[string]ComponentHealth{"a": h, "b": h}, StatusHealthy},
		{"some down", map[string]ComponentHealth{"a": h, "b": u}, StatusDegraded},
		{"all down", map[string]ComponentHealth{"a": u, "b": u}, StatusUnhealthy},
	}
	for _, tc := range cases {
		if got := Overall(tc.in); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestTokenFromExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	st := TokenFromExpiry(now.Add(10*24*time.Hour+time.Hour), now)
	if !st.Valid || st.DaysRemaining == nil || *st.DaysRemaining != 10 {
		t.Fatalf("unexpected status: %+v", st)
	}
	st = TokenFromExpiry(now.Add(-time.Minute), now)
	if st.Valid || st.Error == "" {
		t.Fatalf("expired token should be invalid: %+v", st)
	}
}
