package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const envelopeVersion = 1

var ErrNotSealed = errors.New("payload is not a sealed envelope")

// Envelope is the stored form of an encrypted payload. KeyID names the
// master key used so older payloads stay readable after rotation.
type Envelope struct {
	Version    int    `json:"v"`
	KeyID      string `json:"kid"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ct"`
}

// Sealer encrypts session payloads and provider secrets with AES-256-GCM.
type Sealer struct {
	currentKeyID string
	keys         map[string]cipher.AEAD
}

func NewSealer(currentKeyID string, keys map[string][]byte) (*Sealer, error) {
	if currentKeyID == "" {
		return nil, fmt.Errorf("current key id is empty")
	}
	if _, ok := keys[currentKeyID]; !ok {
		return nil, fmt.Errorf("current key id %q not found", currentKeyID)
	}
	aeads := make(map[string]cipher.AEAD, len(keys))
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %q must be 32 bytes", id)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("key %q: new cipher: %w", id, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("key %q: new gcm: %w", id, err)
		}
		aeads[id] = aead
	}
	return &Sealer{currentKeyID: currentKeyID, keys: aeads}, nil
}

func (s *Sealer) CurrentKeyID() string { return s.currentKeyID }

// Seal encrypts plaintext under the current key and returns the JSON envelope.
// aad binds the ciphertext to its owner, e.g. the session id.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	aead := s.keys[s.currentKeyID]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	env := Envelope{
		Version:    envelopeVersion,
		KeyID:      s.currentKeyID,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, aad)),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return b, nil
}

func (s *Sealer) Open(raw, aad []byte) ([]byte, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	aead, ok := s.keys[env.KeyID]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", env.KeyID)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return pt, nil
}

// Reseal re-encrypts raw under the current key. Payloads already on the
// current key are returned unchanged.
func (s *Sealer) Reseal(raw, aad []byte) ([]byte, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if env.KeyID == s.currentKeyID {
		return raw, nil
	}
	pt, err := s.Open(raw, aad)
	if err != nil {
		return nil, err
	}
	return s.Seal(pt, aad)
}

func (s *Sealer) OpenString(raw string) (string, error) {
	pt, err := s.Open([]byte(raw), nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func (s *Sealer) SealString(value string) (string, error) {
	b, err := s.Seal([]byte(value), nil)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// IsSealed reports whether raw looks like an envelope produced by Seal.
func IsSealed(raw []byte) bool {
	_, err := parseEnvelope(raw)
	return err == nil
}

func parseEnvelope(raw []byte) (Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Envelope{}, ErrNotSealed
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrNotSealed
	}
	if env.Version != envelopeVersion || env.KeyID == "" || env.Ciphertext == "" {
		return Envelope{}, ErrNotSealed
	}
	return env, nil
}
