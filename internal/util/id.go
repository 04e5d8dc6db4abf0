package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns 128 bits of hex with an optional prefix. The session layer
// uses prefixes to keep token kinds distinguishable in logs ("jti_...",
// "rft_...") without revealing anything about the value.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
