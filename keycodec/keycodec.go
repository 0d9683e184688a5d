// Package keycodec derives the cache and store keys used throughout
// the engine from raw request identifiers.
//
// Email addresses are sensitive and never appear verbatim in Redis:
// they are normalized and reduced to a one-way SHA-256 digest. IP
// addresses are not treated as sensitive and pass through unchanged so
// blocklist entries stay operator-readable.
package keycodec

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Codec derives deterministic store keys. An optional pepper keeps the
// derived key space disjoint between deployments sharing a Redis.
type Codec struct {
	pepper []byte
}

// New returns a Codec. pepper may be nil.
func New(pepper []byte) *Codec {
	p := make([]byte, len(pepper))
	copy(p, pepper)
	return &Codec{pepper: p}
}

// DeriveEmail returns the stable, non-reversible key for an email
// address. The input is trimmed and lowercased first so differently
// cased submissions account against the same window.
func (c *Codec) DeriveEmail(raw string) string {
	norm := strings.ToLower(strings.TrimSpace(raw))

	h := sha256.New()
	h.Write(c.pepper)
	h.Write([]byte(norm))

	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// DeriveIP returns the key for a client IP. IPs are used as-is.
func (c *Codec) DeriveIP(raw string) string {
	return strings.TrimSpace(raw)
}
