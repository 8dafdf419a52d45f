package config

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_STORE", "")
	cfg, err := LoadWith(SecretChain{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.Store != StoreRedis || cfg.Session.TTL != time.Hour {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Provider.Timeout != 120*time.Second {
		t.Fatalf("provider timeout = %v", cfg.Provider.Timeout)
	}
	if cfg.Crypto.Enabled() {
		t.Fatalf("crypto should be disabled without keys")
	}
}

func TestLoadSecondsAndDebugFallback(t *testing.T) {
	t.Setenv("SESSION_TTL", "90")
	t.Setenv("DEBUG", "true")
	cfg, err := LoadWith(SecretChain{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.TTL != 90*time.Second {
		t.Fatalf("ttl = %v", cfg.Session.TTL)
	}
	if cfg.Session.Store != StoreMemory {
		t.Fatalf("debug mode should use memory store, got %s", cfg.Session.Store)
	}
}

func TestLoadRejectsBadStore(t *testing.T) {
	t.Setenv("SESSION_STORE", "cassandra")
	if _, err := LoadWith(SecretChain{}); !errors.Is(err, ErrInvalidSessionStore) {
		t.Fatalf("expected ErrInvalidSessionStore, got %v", err)
	}
	t.Setenv("SESSION_STORE", "sql")
	if _, err := LoadWith(SecretChain{}); !errors.Is(err, ErrMissingDatabaseDSN) {
		t.Fatalf("expected ErrMissingDatabaseDSN, got %v", err)
	}
}

func TestLoadCryptoKeys(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	t.Setenv("MASTER_KEY_B64", key)
	cfg, err := LoadWith(SecretChain{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Crypto.Enabled() || cfg.Crypto.CurrentKeyID != "default" {
		t.Fatalf("unexpected crypto config: %+v", cfg.Crypto)
	}

	t.Setenv("MASTER_KEY_B64", base64.StdEncoding.EncodeToString([]byte("short")))
	if _, err := LoadWith(SecretChain{}); err == nil {
		t.Fatalf("expected short key error")
	}
}

func TestSecretChainOrder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "claude_code_oauth_token"), []byte("from-dir\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ref := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(ref, []byte("from-ref"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CLAUDE_CODE_OAUTH_TOKEN", "from-env")
	chain := SecretChain{FileRefSecrets{}, FileSecrets{Dir: dir}, EnvSecrets{}}

	if v, _ := chain.Get("CLAUDE_CODE_OAUTH_TOKEN"); v != "from-dir" {
		t.Fatalf("dir secret should win over env, got %q", v)
	}
	t.Setenv("CLAUDE_CODE_OAUTH_TOKEN_FILE", ref)
	if v, _ := chain.Get("CLAUDE_CODE_OAUTH_TOKEN"); v != "from-ref" {
		t.Fatalf("_FILE secret should win, got %q", v)
	}
	if _, ok := chain.Get("MISSING_SECRET"); ok {
		t.Fatalf("missing secret should not resolve")
	}
}

func TestParseProviderSpecs(t *testing.T) {
	t.Setenv("LOCAL_KEY", "sk-local")
	raw := []byte(`
providers:
  - name: Local
    kind: openai_compat
    base_url: http://localhost:11434/v1
    api_key_env: LOCAL_KEY
    models: [llama3, qwen2]
    default_model: llama3
    aliases:
      l3: llama3
`)
	specs, err := ParseProviderSpecs(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "local" || specs[0].APIKey != "sk-local" {
		t.Fatalf("unexpected specs: %+v", specs)
	}
	if specs[0].Aliases["l3"] != "llama3" {
		t.Fatalf("aliases not parsed: %+v", specs[0].Aliases)
	}

	dup := []byte("providers:\n  - {name: a, kind: custom_http, models: [m]}\n  - {name: A, kind: custom_http, models: [m]}\n")
	if _, err := ParseProviderSpecs(dup); !errors.Is(err, ErrDuplicateProvider) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := ParseProviderSpecs([]byte("providers:\n  - {name: a, kind: custom_http}\n")); err == nil {
		t.Fatalf("expected missing models error")
	}
}

func TestLoadDashboard(t *testing.T) {
	t.Setenv("HUB_API_URL", "http://hub:8000/")
	cfg, err := LoadDashboard()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://hub:8000" {
		t.Fatalf("api url = %q", cfg.APIURL)
	}
	t.Setenv("PANEL_STORE", "sql")
	if _, err := LoadDashboard(); !errors.Is(err, ErrInvalidPanelStore) {
		t.Fatalf("expected ErrInvalidPanelStore, got %v", err)
	}
}
