package session

import (
	"encoding/json"
	"fmt"

	"llmhub/internal/crypto"
	"llmhub/internal/domain"
)

// Codec turns a session into its stored bytes and back. Decode receives the
// id the payload was stored under.
type Codec interface {
	Encode(s *domain.Session) ([]byte, error)
	Decode(id string, raw []byte) (*domain.Session, error)
}

type JSONCodec struct{}

func (JSONCodec) Encode(s *domain.Session) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return b, nil
}

func (JSONCodec) Decode(id string, raw []byte) (*domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// SealedCodec encrypts the JSON form with the session id as associated data,
// so a payload copied under another key fails to open. Plain payloads
// written before encryption was enabled still decode.
type SealedCodec struct {
	Sealer *crypto.Sealer
}

func (c SealedCodec) Encode(s *domain.Session) ([]byte, error) {
	plain, err := JSONCodec{}.Encode(s)
	if err != nil {
		return nil, err
	}
	sealed, err := c.Sealer.Seal(plain, []byte(s.ID))
	if err != nil {
		return nil, fmt.Errorf("seal session %s: %w", s.ID, err)
	}
	return sealed, nil
}

func (c SealedCodec) Decode(id string, raw []byte) (*domain.Session, error) {
	if !crypto.IsSealed(raw) {
		return JSONCodec{}.Decode(id, raw)
	}
	plain, err := c.Sealer.Open(raw, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", id, err)
	}
	return JSONCodec{}.Decode(id, plain)
}

// NewCodec returns a SealedCodec when sealer is set, JSONCodec otherwise.
func NewCodec(sealer *crypto.Sealer) Codec {
	if sealer == nil {
		return JSONCodec{}
	}
	return SealedCodec{Sealer: sealer}
}
