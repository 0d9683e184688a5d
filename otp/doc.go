// Package otp implements the one-time-code challenge of the recovery
// flow.
//
// Lifecycle per subject: NONE -> PENDING (Generate) -> VERIFIED,
// EXHAUSTED, or EXPIRED. A pending record holds the sealed code, the
// remaining attempt budget, and a hard expiry; it lives in Redis under
// "otp:{subjectKey}" with a TTL matching the expiry. Exactly one
// record may be pending per subject, and the record is destroyed by
// success, exhaustion, supersession, or TTL.
//
// Codes are never stored in plaintext. The attempt budget, not the
// storage form, is the primary brute-force defense; see the internal
// seal package for the hashed and encrypted strategies.
package otp
