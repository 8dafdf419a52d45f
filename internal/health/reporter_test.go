package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmhub/internal/domain"
	"llmhub/internal/providers"
	"llmhub/internal/providers/providerstest"
	"llmhub/internal/session"
)

func newReporter(t *testing.T, maxAge time.Duration, ps ...providers.Provider) (*Reporter, *providers.Registry) {
	t.Helper()
	reg := providers.NewRegistry()
	for _, p := range ps {
		if err := reg.Register(p); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return NewReporter(Config{
		Version:   "1.2.3",
		Store:     session.NewMemoryStore(time.Hour),
		Providers: reg,
		MaxAge:    maxAge,
		Logger:    zerolog.Nop(),
	}), reg
}

func TestDetailedAllHealthy(t *testing.T) {
	r, _ := newReporter(t, 0, providerstest.New("claude", "m1"), providerstest.New("gemini", "g1"))

	got := r.Detailed(context.Background())
	if got.Status != domain.StatusHealthy || got.Version != "1.2.3" {
		t.Fatalf("unexpected overall: %+v", got)
	}
	if len(got.Components) != 3 {
		t.Fatalf("expected memory + 2 providers, got %v", got.Components)
	}
	c := got.Components["claude"]
	if c.LatencyMS == nil || c.LastSuccess == nil || len(c.SupportedModels) != 1 {
		t.Fatalf("component missing fields: %+v", c)
	}
}

func TestDetailedDegradedKeepsLastSuccess(t *testing.T) {
	claude := providerstest.New("claude", "m1")
	r, _ := newReporter(t, 0, claude)
	ctx := context.Background()

	first := r.Detailed(ctx).Components["claude"].LastSuccess
	claude.SetHealth(domain.Unhealthy(errors.New("binary missing")))

	got := r.Detailed(ctx)
	if got.Status != domain.StatusDegraded {
		t.Fatalf("status = %s", got.Status)
	}
	c := got.Components["claude"]
	if c.Error != "binary missing" || c.LastSuccess == nil || !c.LastSuccess.Equal(*first) {
		t.Fatalf("unexpected component: %+v", c)
	}
}

func TestDetailedServesCachedSnapshot(t *testing.T) {
	claude := providerstest.New("claude", "m1")
	r, _ := newReporter(t, time.Hour, claude)
	ctx := context.Background()

	r.Detailed(ctx)
	claude.SetHealth(domain.Unhealthy(errors.New("down")))
	if got := r.Detailed(ctx); got.Status != domain.StatusHealthy {
		t.Fatalf("expected cached healthy snapshot, got %s", got.Status)
	}
	r.Refresh(ctx)
	if got := r.Detailed(ctx); got.Status != domain.StatusDegraded {
		t.Fatalf("expected refreshed snapshot, got %s", got.Status)
	}
}

func TestTokensIncludeDisabledAsNil(t *testing.T) {
	claude := providerstest.New("claude", "m1")
	claude.Token = domain.TokenStatus{Valid: true, Error: "clock skew"}
	r, reg := newReporter(t, 0, claude)
	reg.Disable("gemini", "no credentials")

	got := r.Tokens(context.Background())
	if len(got) != 2 {
		t.Fatalf("unexpected tokens: %v", got)
	}
	if g, ok := got["gemini"]; !ok || g != nil {
		t.Fatalf("disabled provider should be a nil entry, got %v", g)
	}
	if c := got["claude"]; c == nil || c.Valid {
		t.Fatalf("an error must force valid=false, got %+v", c)
	}
}

func TestBasicIsAlwaysHealthy(t *testing.T) {
	r, _ := newReporter(t, 0)
	if got := r.Basic(); got.Status != domain.StatusHealthy || got.Timestamp.IsZero() {
		t.Fatalf("unexpected basic: %+v", got)
	}
}
