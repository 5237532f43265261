package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

// TokenStrategy mints opaque session tokens. Two strategies exist:
// a plain random identifier, and an authenticated-encryption wrapped
// identifier that adds defense if the session store is ever read
// directly. Both are interchangeable from the validator's point of
// view, which only treats tokens as lookup keys.
type TokenStrategy interface {
	Mint() (string, error)
}

// OpaqueStrategy issues plain random unguessable identifiers.
type OpaqueStrategy struct{}

// Mint implements TokenStrategy.
func (OpaqueStrategy) Mint() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("auth: mint token: %w", err)
	}
	return id.String(), nil
}

// EncryptedStrategy wraps a random identifier in AES-256-GCM under a
// key derived from the server secret. Token format is
// iv:tag:ciphertext, hex encoded.
type EncryptedStrategy struct {
	key []byte
}

const (
	tokenScryptSalt = "botnev-session"
	tokenNonceSize  = 12
)

// NewEncryptedStrategy derives the AES key from the session secret.
func NewEncryptedStrategy(secret string) (*EncryptedStrategy, error) {
	if secret == "" {
		return nil, errors.New("auth: session secret required for encrypted tokens")
	}
	key, err := scrypt.Key([]byte(secret), []byte(tokenScryptSalt), 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("auth: derive token key: %w", err)
	}
	return &EncryptedStrategy{key: key}, nil
}

// Mint implements TokenStrategy.
func (s *EncryptedStrategy) Mint() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("auth: mint token: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: token cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("auth: token gcm: %w", err)
	}

	nonce := make([]byte, tokenNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("auth: token nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(id.String()), nil)
	ciphertext := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Open decrypts a token minted by this strategy and returns the wrapped
// identifier. Used for diagnostics; validation never needs it.
func (s *EncryptedStrategy) Open(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", errors.New("auth: malformed encrypted token")
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", errors.New("auth: malformed encrypted token")
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", errors.New("auth: malformed encrypted token")
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", errors.New("auth: malformed encrypted token")
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: token cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("auth: token gcm: %w", err)
	}

	plain, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", errors.New("auth: token authentication failed")
	}
	return string(plain), nil
}

// NewTokenStrategy selects a strategy by configured mode.
func NewTokenStrategy(mode, secret string) (TokenStrategy, error) {
	switch mode {
	case "", "opaque":
		return OpaqueStrategy{}, nil
	case "encrypted":
		return NewEncryptedStrategy(secret)
	default:
		return nil, fmt.Errorf("auth: unknown session token mode %q", mode)
	}
}

var (
	_ TokenStrategy = OpaqueStrategy{}
	_ TokenStrategy = (*EncryptedStrategy)(nil)
)
