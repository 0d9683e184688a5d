// Package token issues and verifies the signed tokens minted once a
// recovery completes: access, refresh, and email-verification tokens,
// each bound to its own signing keychain.
//
// Purpose binding is enforced twice: the key identifier in the token
// header must belong to the expected purpose's chain, and the purpose
// claim inside the payload must match. Compromising one purpose's
// secret therefore never widens to the others, and chains rotate
// independently via retired verify keys.
package token
