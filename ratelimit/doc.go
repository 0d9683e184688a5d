// Package ratelimit provides fixed-window counters over Redis and the
// composite rule sets the engine applies per action.
//
// # Window semantics
//
// A window is INCR + PEXPIRE-on-first-hit executed as one Lua script,
// so the count a consumer observes is exact under concurrency. Key
// layout is "<action>:<windowKind>:<derivedKey>"; the prefix carries
// the first two segments. Expiry is owned by Redis TTLs.
//
// # What this package must NOT do
//
//   - Retry on store errors. An unreachable store surfaces as
//     ErrStoreUnavailable and the caller picks the failure policy.
//   - Reset or decrement counters. Windows only ever fill and expire.
package ratelimit
