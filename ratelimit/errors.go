package ratelimit

import "errors"

var (
	// ErrStoreUnavailable indicates the counter store could not be
	// reached. Callers decide fail-open vs fail-closed; this package
	// never converts an outage into an allow or a deny on its own.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)
