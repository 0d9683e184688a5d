// Package seal provides the at-rest representation of recovery secrets.
//
// Two strategies exist behind one interface: a one-way SHA-256 digest
// for secrets only ever compared for equality, and a reversible
// ChaCha20-Poly1305 box for secrets whose plaintext must be recovered
// later (masked display, resend). Hashing is the default; reversible
// sealing is opt-in and requires a 32-byte key.
package seal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrNotReversible is returned by Open on a hash-sealed value.
	ErrNotReversible = errors.New("sealed value is not reversible")
	// ErrInvalidSealKey indicates a key of the wrong size.
	ErrInvalidSealKey = errors.New("seal key must be 32 bytes")
	// ErrCorruptSealed indicates a sealed value that cannot be opened.
	ErrCorruptSealed = errors.New("corrupt sealed value")
)

// Sealer converts a plaintext secret to and from its stored form.
// Implementations must be safe for concurrent use.
type Sealer interface {
	// Seal returns the stored representation of plain.
	Seal(plain string) ([]byte, error)
	// Compare reports whether candidate matches the sealed value.
	// The comparison is constant-time with respect to the secret.
	Compare(sealed []byte, candidate string) (bool, error)
	// Open recovers the plaintext, or ErrNotReversible.
	Open(sealed []byte) (string, error)
}

// HashSealer stores a SHA-256 digest. One-way.
type HashSealer struct{}

// NewHash returns a one-way Sealer.
func NewHash() HashSealer { return HashSealer{} }

func (HashSealer) Seal(plain string) ([]byte, error) {
	sum := sha256.Sum256([]byte(plain))
	return sum[:], nil
}

func (HashSealer) Compare(sealed []byte, candidate string) (bool, error) {
	if len(sealed) != sha256.Size {
		return false, ErrCorruptSealed
	}
	sum := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(sealed, sum[:]) == 1, nil
}

func (HashSealer) Open([]byte) (string, error) {
	return "", ErrNotReversible
}

// AEADSealer stores ciphertext under ChaCha20-Poly1305 with a random
// nonce prefixed to the box. Reversible.
type AEADSealer struct {
	key []byte
}

// NewAEAD returns a reversible Sealer keyed with a 32-byte secret.
func NewAEAD(key []byte) (*AEADSealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidSealKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &AEADSealer{key: k}, nil
}

func (s *AEADSealer) Seal(plain string) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nonce)+len(plain)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, []byte(plain), nil), nil
}

func (s *AEADSealer) Compare(sealed []byte, candidate string) (bool, error) {
	plain, err := s.Open(sealed)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(candidate)) == 1, nil
}

func (s *AEADSealer) Open(sealed []byte) (string, error) {
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < chacha20poly1305.NonceSize {
		return "", ErrCorruptSealed
	}

	nonce, box := sealed[:chacha20poly1305.NonceSize], sealed[chacha20poly1305.NonceSize:]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptSealed, err)
	}

	return string(plain), nil
}
