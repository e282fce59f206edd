package rooms

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	tokenBytes    = 24
	tokenAttempts = 8
)

// TokenGenerator returns a fresh opaque token.
type TokenGenerator func() (string, error)

// RandomToken returns 24 random bytes, base64url encoded.
func RandomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// mintToken draws tokens until one is not already taken.
func mintToken(gen TokenGenerator, taken func(string) bool) (string, error) {
	for i := 0; i < tokenAttempts; i++ {
		token, err := gen()
		if err != nil {
			return "", err
		}
		if token != "" && !taken(token) {
			return token, nil
		}
	}
	return "", fmt.Errorf("no unique token after %d attempts", tokenAttempts)
}
