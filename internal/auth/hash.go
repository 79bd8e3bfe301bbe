// Package auth provides password hashing, opaque API tokens and the JWT
// session tokens used by the admin console.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// HashPassword returns the hex SHA-256 digest of the password. The format is
// shared with the existing user table, so it cannot change without a
// migration of every stored credential.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword checks a password against a stored hash in constant time.
func VerifyPassword(password, storedHash string) bool {
	computed := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// NewOpaqueToken generates a 32-character hex API token.
func NewOpaqueToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
