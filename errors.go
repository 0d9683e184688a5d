package gatekit

import (
	"errors"
	"fmt"
	"time"
)

// Engine outcomes form a three-valued surface: nil (allow), a
// rate-limit error carrying a retry-after (deny, recoverable by
// waiting), and permanent denials (exhausted or invalid challenges).
// Store outages are a fourth, infrastructure-shaped failure that is
// never converted into an allow or deny by this package.
var (
	// ErrRateLimited is any denial recoverable by waiting. Unwrap to
	// *RateLimitError for the retry-after duration.
	ErrRateLimited = errors.New("rate limited")
	// ErrChallengeInvalid is a wrong OTP or reset token. Deliberately
	// generic: absence, expiry, and mismatch are indistinguishable so
	// callers cannot enumerate accounts or challenge state.
	ErrChallengeInvalid = errors.New("challenge invalid")
	// ErrChallengeExhausted is an attempt budget spent or a challenge
	// expired; not recoverable without requesting a new challenge.
	ErrChallengeExhausted = errors.New("challenge exhausted or expired")
	// ErrTokenInvalid is a signed token that failed verification for
	// any reason; never recoverable for that token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrIdentityNotFound means no account matches the identifier.
	// The HTTP layer must present this identically to success so the
	// endpoint does not become an account oracle.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrStoreUnavailable is an infrastructure fault reaching Redis.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrEngineNotReady guards use before Build or after Close.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError is the deny-with-retry-after outcome.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// ChallengeError is a wrong OTP with attempts still remaining, so the
// caller can tell the user how many tries are left without revealing
// anything else.
type ChallengeError struct {
	AttemptsLeft int
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge invalid, %d attempts left", e.AttemptsLeft)
}

func (e *ChallengeError) Is(target error) bool { return target == ErrChallengeInvalid }
