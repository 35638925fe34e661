package util

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateStateToken returns an opaque token for the OAuth state parameter.
func GenerateStateToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
