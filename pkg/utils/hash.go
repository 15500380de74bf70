package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// SumSHA256 returns the SHA-256 checksum of the provided data.
func SumSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashToken returns the hex SHA-256 of an opaque token. Only the hash is
// stored, so a leaked table cannot be replayed.
func HashToken(token string) string {
	sum := SumSHA256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RandomToken returns a URL-safe random string backed by n bytes of entropy.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
