// Package secret seals audit payloads at rest with Fernet tokens.
package secret

import (
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

// ErrUnsealFailed is returned when a token does not verify against any configured key.
var ErrUnsealFailed = errors.New("failed to unseal payload")

// Sealer encrypts with the first key and decrypts with any of them, so keys can be rotated
// by prepending a new one.
type Sealer struct {
	keys []*fernet.Key
}

// NewSealer decodes one or more base64 Fernet keys.
func NewSealer(encodedKeys ...string) (*Sealer, error) {
	if len(encodedKeys) == 0 {
		return nil, errors.New("at least one key is required")
	}
	keys, err := fernet.DecodeKeys(encodedKeys...)
	if err != nil {
		return nil, fmt.Errorf("invalid fernet key: %w", err)
	}
	return &Sealer{keys: keys}, nil
}

// GenerateKey returns a fresh base64 encoded key.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return k.Encode(), nil
}

// Seal encrypts plaintext into a Fernet token.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	tok, err := fernet.EncryptAndSign(plaintext, s.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to seal payload: %w", err)
	}
	return string(tok), nil
}

// Unseal decrypts a token produced by Seal. Tokens never expire.
func (s *Sealer) Unseal(token string) ([]byte, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), -1, s.keys)
	if msg == nil {
		return nil, ErrUnsealFailed
	}
	return msg, nil
}
