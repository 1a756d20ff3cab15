package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// NewToken returns a 64-char hex token backed by 256 bits of entropy.
// Tokens are the public credential for a consent request, so they must
// not be guessable or enumerable.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// DigestToken returns the SHA-256 hex digest of a token, stored so the
// record can be verified without keeping the raw secret at rest.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
