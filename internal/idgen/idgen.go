// Package idgen provides cryptographically random ID generation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Session generates an unpredictable session identifier: 16 random bytes,
// hex-encoded to 32 lowercase characters. Session IDs double as report IDs,
// so they must be infeasible to forge or guess.
func Session() string {
	return Hex(16)
}

// WithPrefix generates a random ID with a prefix (e.g. "flag_", "rpt_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
