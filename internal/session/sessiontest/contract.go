// Package sessiontest holds the behavior every session.Store must share.
package sessiontest

import (
	"context"
	"errors"
	"testing"
	"time"

	"llmhub/internal/domain"
	"llmhub/internal/session"
)

// RunContract exercises store through create, read, update, list and delete.
// The store must start empty.
func RunContract(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)

	t.Run("create and get", func(t *testing.T) {
		s := domain.NewSession("claude", "claude-sonnet-4-5-20250929", base)
		s.SystemPrompt = "be brief"
		s.Context = &domain.SessionContext{Memory: "notes"}
		s.Metadata = map[string]any{"team": "infra"}
		created, err := store.Create(ctx, s)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ExpiresAt == nil || created.ExpiresAt.Before(created.CreatedAt) {
			t.Fatalf("create must set expires_at >= created_at, got %v", created.ExpiresAt)
		}

		got, err := store.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Provider != "claude" || got.SystemPrompt != "be brief" || got.Context.Memory != "notes" {
			t.Fatalf("round trip lost fields: %+v", got)
		}
		if got.Status != domain.SessionActive {
			t.Fatalf("status = %s", got.Status)
		}
		if got.Metadata["team"] != "infra" {
			t.Fatalf("metadata lost: %+v", got.Metadata)
		}
		ok, err := store.Exists(ctx, s.ID)
		if err != nil || !ok {
			t.Fatalf("exists = %v, %v", ok, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := store.Get(ctx, "does-not-exist"); !errors.Is(err, session.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		ok, err := store.Exists(ctx, "does-not-exist")
		if err != nil || ok {
			t.Fatalf("exists = %v, %v", ok, err)
		}
		deleted, err := store.Delete(ctx, "does-not-exist")
		if err != nil || deleted {
			t.Fatalf("delete missing = %v, %v", deleted, err)
		}
	})

	t.Run("update appends transcript", func(t *testing.T) {
		s := domain.NewSession("gemini", "gemini-2.5-pro", base)
		if _, err := store.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
		s.AddUserMessage("hello", base.Add(time.Second))
		s.AddAssistantMessage("hi", base.Add(2*time.Second))
		if _, err := store.Update(ctx, s); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, err := store.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got.Messages) != 2 || got.Messages[0].Role != domain.RoleUser || got.Messages[1].Content != "hi" {
			t.Fatalf("unexpected transcript: %+v", got.Messages)
		}
		if got.UpdatedAt.Before(base.Add(2 * time.Second)) {
			t.Fatalf("updated_at not advanced: %v", got.UpdatedAt)
		}

		got.Messages = append(got.Messages, domain.NewMessage(domain.RoleUser, "local only", base))
		again, _ := store.Get(ctx, s.ID)
		if len(again.Messages) != 2 {
			t.Fatalf("mutating a returned session leaked into the store")
		}
	})

	t.Run("list newest first with paging", func(t *testing.T) {
		all, err := store.List(ctx, 100, 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		existing := len(all)

		var ids []string
		for i := 0; i < 3; i++ {
			s := domain.NewSession("claude", "m", base.Add(time.Duration(i+10)*time.Second))
			if _, err := store.Create(ctx, s); err != nil {
				t.Fatalf("create: %v", err)
			}
			ids = append(ids, s.ID)
		}

		first, err := store.List(ctx, 2, 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(first) != 2 || first[0].ID != ids[2] || first[1].ID != ids[1] {
			t.Fatalf("unexpected first page order")
		}
		rest, err := store.List(ctx, 100, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(rest) != existing+1 || rest[0].ID != ids[0] {
			t.Fatalf("unexpected second page: %d items", len(rest))
		}
		empty, err := store.List(ctx, 10, 1000)
		if err != nil || len(empty) != 0 {
			t.Fatalf("offset past end should be empty: %d %v", len(empty), err)
		}
		n, err := store.Count(ctx)
		if err != nil || n != existing+3 {
			t.Fatalf("count = %d, %v; want %d", n, err, existing+3)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := domain.NewSession("claude", "m", base)
		if _, err := store.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
		deleted, err := store.Delete(ctx, s.ID)
		if err != nil || !deleted {
			t.Fatalf("delete = %v, %v", deleted, err)
		}
		if _, err := store.Get(ctx, s.ID); !errors.Is(err, session.ErrNotFound) {
			t.Fatalf("deleted session still readable: %v", err)
		}
	})

	t.Run("health", func(t *testing.T) {
		if h := store.HealthCheck(ctx); h.Status != domain.StatusHealthy {
			t.Fatalf("health = %+v", h)
		}
	})
}
