package gatekit

import "context"

// Identity is the minimal account view the engine needs.
type Identity struct {
	ID    string
	Email string
}

// CredentialStore is the external collaborator owning persistent user
// records. The engine only ever looks identities up and writes new
// password digests; CRUD stays outside.
type CredentialStore interface {
	// FindByEmail resolves an identity, or ErrIdentityNotFound.
	FindByEmail(ctx context.Context, email string) (Identity, error)
	// UpdatePassword replaces the stored digest for an identity.
	UpdatePassword(ctx context.Context, id, digest string) error
}

// PasswordHasher is the opaque hashing capability. The engine never
// sees hashing internals; digests pass straight through to the
// CredentialStore.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}
