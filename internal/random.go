package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const (
	resetTokenSize   = 32
	opaqueSecretSize = 32
)

// NewResetToken returns a base64url reset token and the hex SHA-256 digest
// that is stored in its place.
func NewResetToken() (token string, digest string, err error) {
	var raw [resetTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(raw[:])
	return token, HashResetToken(token), nil
}

// HashResetToken is the digest lookup key for a presented reset token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueSecret returns random URL-safe material: the never-disclosed
// password of federated-only accounts, and OAuth state values.
func NewOpaqueSecret() (string, error) {
	var raw [opaqueSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
