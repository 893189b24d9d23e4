package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	auth "github.com/goliatone/go-auth"
)

const temporarySecretBytes = 32

// NewTemporarySecret returns a random secret for accounts created on behalf
// of someone else. It is never shown to anyone.
func NewTemporarySecret() (string, error) {
	buf := make([]byte, temporarySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("identity: generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewTemporaryPasswordHash generates a temporary secret and returns its hash.
func NewTemporaryPasswordHash() (string, error) {
	secret, err := NewTemporarySecret()
	if err != nil {
		return "", err
	}
	hash, err := auth.HashPassword(secret)
	if err != nil {
		return "", fmt.Errorf("identity: hash secret: %w", err)
	}
	return hash, nil
}
