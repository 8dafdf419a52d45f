package registry

import (
	"testing"

	"github.com/rs/zerolog"

	"llmhub/internal/config"
	"llmhub/internal/crypto"
	"llmhub/internal/providers"
)

func TestBuildUnknownKind(t *testing.T) {
	if _, err := Build(BuildOptions{Kind: "carrier_pigeon"}); err == nil {
		t.Fatalf("expected unsupported kind error")
	}
}

func TestLoadRegistersConfiguredProviders(t *testing.T) {
	sealer, err := crypto.NewSealer("k", map[string][]byte{"k": make([]byte, 32)})
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	enc, err := sealer.SealString("sk-sealed")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	cfg := &config.Config{}
	cfg.Claude.OAuthToken = "tok"
	cfg.Claude.DefaultModel = "sonnet"
	reg, err := Load(LoadOptions{
		Config: cfg,
		Specs: []config.ProviderSpec{
			{Name: "local", Kind: "openai_compat", BaseURL: "http://localhost:1/v1", Models: []string{"llama3"}, APIKeyEnc: enc},
			{Name: "off", Kind: "custom_http", Models: []string{"m"}, Disabled: true},
		},
		Sealer: sealer,
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := reg.Names(); len(got) != 2 || got[0] != "claude" || got[1] != "local" {
		t.Fatalf("names = %v", got)
	}
	p, ok := reg.Get("LOCAL")
	if !ok || p.AuthMethod() != providers.AuthAPIKey {
		t.Fatalf("local provider missing or unauthenticated")
	}
	disabled := reg.Disabled()
	if len(disabled) != 2 || disabled[0].Name != "gemini" || disabled[1].Name != "off" {
		t.Fatalf("disabled = %+v", disabled)
	}
	if d, _ := reg.Default(""); d.Name() != "claude" {
		t.Fatalf("default should be first registered, got %s", d.Name())
	}
}

func TestLoadRejectsSealedKeyWithoutSealer(t *testing.T) {
	_, err := Load(LoadOptions{
		Config: &config.Config{},
		Specs:  []config.ProviderSpec{{Name: "x", Kind: "openai_compat", Models: []string{"m"}, APIKeyEnc: "{}"}},
		Logger: zerolog.Nop(),
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}
