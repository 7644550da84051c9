// Package secrets seals credential material at rest with XChaCha20-Poly1305.
package secrets

import (
    "crypto/cipher"
    "crypto/rand"
    "encoding/base64"
    "encoding/hex"
    "errors"
    "fmt"
    "strings"

    "golang.org/x/crypto/chacha20poly1305"

    "juscapture/internal/domain"
)

var ErrKey = errors.New("credential key must be 32 bytes, hex or base64 encoded")

type Sealer struct {
    aead cipher.AEAD
}

// ParseKey accepts a 32-byte key as 64 hex characters or standard base64.
func ParseKey(s string) ([]byte, error) {
    s = strings.TrimSpace(s)
    if b, err := hex.DecodeString(s); err == nil && len(b) == chacha20poly1305.KeySize {
        return b, nil
    }
    if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == chacha20poly1305.KeySize {
        return b, nil
    }
    return nil, ErrKey
}

func New(key []byte) (*Sealer, error) {
    aead, err := chacha20poly1305.NewX(key)
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrKey, err)
    }
    return &Sealer{aead: aead}, nil
}

// Seal encrypts s; aad binds the ciphertext to its owner so rows cannot be swapped.
func (s *Sealer) Seal(secret domain.Secret, aad string) ([]byte, error) {
    if secret.Empty() {
        return nil, nil
    }
    nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(secret.Reveal())+s.aead.Overhead())
    if _, err := rand.Read(nonce); err != nil {
        return nil, err
    }
    return s.aead.Seal(nonce, nonce, []byte(secret.Reveal()), []byte(aad)), nil
}

func (s *Sealer) Open(sealed []byte, aad string) (domain.Secret, error) {
    if len(sealed) == 0 {
        return "", nil
    }
    if len(sealed) < s.aead.NonceSize() {
        return "", errors.New("sealed secret too short")
    }
    nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
    pt, err := s.aead.Open(nil, nonce, ct, []byte(aad))
    if err != nil {
        return "", fmt.Errorf("open sealed secret: %w", err)
    }
    return domain.Secret(pt), nil
}
