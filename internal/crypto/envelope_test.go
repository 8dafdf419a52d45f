package crypto

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("k1", map[string][]byte{
		"k1": mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="),
	})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	raw, err := s.Seal([]byte(`{"id":"abc"}`), []byte("abc"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(raw) {
		t.Fatalf("sealed payload not recognized: %s", raw)
	}
	out, err := s.Open(raw, []byte("abc"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(out) != `{"id":"abc"}` {
		t.Fatalf("unexpected plaintext %q", out)
	}
	if _, err := s.Open(raw, []byte("other")); err == nil {
		t.Fatalf("open with wrong aad should fail")
	}
}

func TestPlainPayloadIsNotSealed(t *testing.T) {
	if IsSealed([]byte(`{"id":"abc","provider":"claude"}`)) {
		t.Fatalf("plain session json must not look sealed")
	}
	s, _ := NewSealer("k1", map[string][]byte{"k1": make([]byte, 32)})
	if _, err := s.Open([]byte("plain"), nil); !errors.Is(err, ErrNotSealed) {
		t.Fatalf("expected ErrNotSealed, got %v", err)
	}
}

func TestResealAfterRotation(t *testing.T) {
	oldKey := mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	newKey := mustKey(t, "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE=")

	oldSealer, err := NewSealer("old", map[string][]byte{"old": oldKey})
	if err != nil {
		t.Fatalf("old sealer: %v", err)
	}
	legacy, err := oldSealer.SealString("sk-legacy")
	if err != nil {
		t.Fatalf("old seal: %v", err)
	}

	rotated, err := NewSealer("new", map[string][]byte{"old": oldKey, "new": newKey})
	if err != nil {
		t.Fatalf("rotated sealer: %v", err)
	}
	plain, err := rotated.OpenString(legacy)
	if err != nil || plain != "sk-legacy" {
		t.Fatalf("open legacy: %q %v", plain, err)
	}

	resealed, err := rotated.Reseal([]byte(legacy), nil)
	if err != nil {
		t.Fatalf("reseal: %v", err)
	}
	env, _ := parseEnvelope(resealed)
	if env.KeyID != "new" {
		t.Fatalf("resealed under %q, want new", env.KeyID)
	}
	again, err := rotated.Reseal(resealed, nil)
	if err != nil || string(again) != string(resealed) {
		t.Fatalf("reseal on current key should be a no-op")
	}
}

func TestNewSealerValidation(t *testing.T) {
	if _, err := NewSealer("", map[string][]byte{"a": make([]byte, 32)}); err == nil {
		t.Fatalf("expected empty id error")
	}
	if _, err := NewSealer("a", map[string][]byte{"a": make([]byte, 16)}); err == nil {
		t.Fatalf("expected key length error")
	}
}

func mustKey(t *testing.T, b64 string) []byte {
	t.Helper()
	k, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	if len(k) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(k))
	}
	return k
}
