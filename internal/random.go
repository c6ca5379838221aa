package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const actionTokenSize = 32

// NewActionToken generates the opaque one-time token handed out for
// password reset and email verification flows. The raw token is returned
// base64url-encoded; only its SHA-256 hash is ever persisted.
func NewActionToken() (string, error) {
	var raw [actionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashActionToken returns the hex-encoded SHA-256 digest stored in place of
// a raw one-time token.
func HashActionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashSessionToken returns the hex-encoded SHA-256 digest under which a
// refresh token is tracked in the session registry. Registry entries never
// hold the token itself.
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidTokenHash reports whether s looks like a hex SHA-256 digest. Stores
// use it to reject lookup keys that cannot possibly match.
func ValidTokenHash(s string) bool {
	if len(s) != hex.EncodedLen(sha256.Size) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
