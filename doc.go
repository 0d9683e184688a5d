// Package gatekit provides the abuse-control core for credential
// recovery: composite Redis-backed rate limiting, a one-time-code
// challenge with a bounded attempt budget, single-use reset token
// exchange, and purpose-bound signed session tokens.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build] and [Engine.Start].
//
// # Architecture boundaries
//
// gatekit is the orchestration surface. It exposes [Engine], [Builder],
// [Config], and value types (MetricsSnapshot, AuditEvent, etc.). The
// mechanisms live in sub-packages (ratelimit, ipguard, otp, reset,
// token, keycodec), each usable on its own, none importing gatekit
// back.
//
// # What this package must NOT do
//
//   - Store or log raw email addresses; every store key and audit
//     subject is a derived digest (see keycodec).
//   - Deliver codes or tokens. Generate returns plaintext exactly once;
//     transport is the caller's problem.
//   - Own user records. Identity lookup and password persistence go
//     through the CredentialStore and PasswordHasher interfaces.
//
// # Failure contract
//
// Every outcome is one of four shapes: success, a rate-limit denial
// carrying a retry-after, a permanent challenge denial, or
// ErrStoreUnavailable. Store outages are never silently converted into
// an allow or a deny except where a fail-open policy says so
// explicitly.
package gatekit
