// Package addr holds helpers for handling user addresses: normalization for
// consistent map keys, a short form for display, and a hash for logs.
package addr

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize trims whitespace and lowercases an address so the same caller
// always maps to the same ledger account and position key.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Short returns an abbreviated address for display and log payloads,
// e.g. "alice-9f2b…c41a" style truncation for long addresses.
func Short(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

// SHA256Hex returns the hex-encoded SHA256 hash of the input string.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// HashForLog produces a short, irreversible hash prefix of an address for
// log correlation without writing the raw address.
func HashForLog(address string) string {
	return SHA256Hex(Normalize(address))[:12]
}
