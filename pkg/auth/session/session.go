// Package session mints and validates the opaque keys that identify an
// anonymous shopper across requests.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	HeaderName = "X-Session-Key"
	CookieName = "dl_session"

	keyBytes     = 16
	minKeyLength = 16
	maxKeyLength = 128
)

// NewKey returns a fresh 32 character hex session key.
func NewKey() (string, error) {
	return RandomHex(keyBytes)
}

// RandomHex returns n random bytes hex encoded.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidKey reports whether a client supplied key is usable as a cache key.
func ValidKey(key string) bool {
	key = strings.TrimSpace(key)
	if len(key) < minKeyLength || len(key) > maxKeyLength {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
