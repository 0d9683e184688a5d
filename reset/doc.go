// Package reset implements the opaque single-use token handed out
// after a successful OTP verification and consumed by the final
// password change.
//
// Tokens carry no structure; they are verified purely by store lookup
// under "reset-token:{subjectKey}". The record is sealed at rest and
// destroyed on redemption or TTL expiry.
package reset
