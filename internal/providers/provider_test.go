package providers_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"llmhub/internal/domain"
	"llmhub/internal/providers"
	"llmhub/internal/providers/providerstest"
)

func TestCatalog(t *testing.T) {
	c := providers.NewCatalog("x", []string{"a", "b"}, map[string]string{"Fast": "b"}, "fast")
	if c.DefaultModel() != "b" {
		t.Fatalf("alias default not resolved: %s", c.DefaultModel())
	}
	if c.ResolveModel("") != "b" || c.ResolveModel("FAST") != "b" || c.ResolveModel("zzz") != "zzz" {
		t.Fatalf("unexpected resolution")
	}
	models := c.SupportedModels()
	models[0] = "mutated"
	if c.SupportedModels()[0] != "a" {
		t.Fatalf("SupportedModels must return a copy")
	}
	if providers.NewCatalog("x", []string{"a"}, nil, "nope").DefaultModel() != "a" {
		t.Fatalf("unknown default should fall back to first model")
	}
}

func TestFoldHistory(t *testing.T) {
	if providers.FoldHistory(nil, "hi") != "hi" {
		t.Fatalf("empty history should pass prompt through")
	}
	now := time.Now()
	got := providers.FoldHistory([]domain.Message{
		domain.NewMessage(domain.RoleSystem, "ignored", now),
		domain.NewMessage(domain.RoleUser, "q1", now),
		domain.NewMessage(domain.RoleAssistant, "a1", now),
	}, "q2")
	want := "Conversation so far:\n\nUser: q1\n\nAssistant: a1\n\nUser: q2"
	if got != want {
		t.Fatalf("got %q", got)
	}
}

func TestRegistry(t *testing.T) {
	reg := providers.NewRegistry()
	reg.Disable("gemini", "no creds")
	if err := reg.Register(providerstest.New("claude", "m")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(providerstest.New("gemini", "g")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(providerstest.New("Claude", "m")); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
	if len(reg.Disabled()) != 0 {
		t.Fatalf("registering a provider clears its disabled entry")
	}
	if p, ok := reg.Default("gemini"); !ok || p.Name() != "gemini" {
		t.Fatalf("preferred default not honored")
	}
	if p, ok := reg.Default("unknown"); !ok || p.Name() != "claude" {
		t.Fatalf("fallback default should be first registered")
	}
}

func TestStreamViaChat(t *testing.T) {
	p := providerstest.New("x", "m")
	var got []string
	err := providers.StreamViaChat(context.Background(), p, providers.ChatRequest{Prompt: "one two"}, func(s string) error {
		got = append(got, s)
		return nil
	})
	if err != nil || strings.Join(got, "|") != "echo: one two" {
		t.Fatalf("got %v %v", got, err)
	}
	if !providers.Supports(p, "m") || providers.Supports(p, "n") {
		t.Fatalf("Supports mismatch")
	}
}
