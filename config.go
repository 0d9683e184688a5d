package gatekit

import (
	"errors"
	"fmt"
	"time"

	"github.com/0xlenz/gatekit/otp"
)

// FailurePolicy selects how a component behaves when Redis is
// unreachable. The source material for this tradeoff is genuinely
// split, so the choice is configuration, not a constant: fail-closed
// rejects (availability pays for safety), fail-open admits
// (rate limiting degrades to best-effort). Verification paths that
// cannot produce an answer without the store always surface
// ErrStoreUnavailable regardless of policy.
type FailurePolicy int

const (
	FailClosed FailurePolicy = iota
	FailOpen
)

// KeySelector names which identifier a window counts against.
type KeySelector int

const (
	// KeyByEmail keys on the derived (hashed) email subject.
	KeyByEmail KeySelector = iota
	// KeyByIP keys on the raw client IP.
	KeyByIP
)

// WindowRule is one fixed window in an action's composite chain.
type WindowRule struct {
	// Kind names the window inside the key namespace, e.g. "burst".
	Kind string
	// Points is the consumption budget within Window.
	Points int
	// Window is the duration measured from first consumption.
	Window time.Duration
	// Per selects the identifier the window counts against.
	Per KeySelector
}

// RecoveryConfig shapes the two throttled recovery actions.
type RecoveryConfig struct {
	// RequestWindows guard OTP issuance, keyed under "recovery:".
	RequestWindows []WindowRule
	// ConfirmWindows guard OTP verification, keyed under
	// "recovery-confirm:".
	ConfirmWindows []WindowRule
	// OnStoreError picks the policy when the counter store is down.
	OnStoreError FailurePolicy
	// EnumerationDelay pads responses for unknown identifiers so
	// timing does not reveal account existence. Zero disables.
	EnumerationDelay time.Duration
}

// OTPConfig tunes the one-time-code challenge.
type OTPConfig struct {
	Digits   int
	Attempts int
	TTL      time.Duration
	// Strategy selects hashed (default) or encrypted-at-rest codes.
	Strategy otp.Strategy
}

// ResetTokenConfig tunes the single-use reset token exchange.
type ResetTokenConfig struct {
	TTL time.Duration
}

// IPGuardConfig tunes the IP blocklist tier.
type IPGuardConfig struct {
	Enabled       bool
	Burst         int
	Window        time.Duration
	BlockDuration time.Duration
	SweepInterval time.Duration
	OnStoreError  FailurePolicy
}

// TokenPurposeConfig is one purpose's signing material.
type TokenPurposeConfig struct {
	KeyID string
	// Secret signs new tokens; at least 32 bytes.
	Secret []byte
	// Retired maps old key ids to secrets still accepted for
	// verification during rotation.
	Retired map[string][]byte
	TTL     time.Duration
}

// TokensConfig configures the signed-token issuer. Each purpose
// carries independent material so secrets rotate per purpose.
type TokensConfig struct {
	Issuer       string
	Leeway       time.Duration
	Access       TokenPurposeConfig
	Refresh      TokenPurposeConfig
	Verification TokenPurposeConfig
}

// SecurityConfig holds engine-wide key material.
type SecurityConfig struct {
	// KeyPepper separates derived key spaces between deployments.
	KeyPepper []byte
	// SealKey is the 32-byte key sealing OTP codes (encrypted
	// strategy) and reset tokens at rest.
	SealKey []byte
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events under backpressure instead of blocking
	// request paths; drops are counted and exported.
	DropIfFull bool
}

// MetricsConfig toggles the atomic counter table.
type MetricsConfig struct {
	Enabled bool
}

// Config is the full engine configuration. Treat as immutable after
// Build.
type Config struct {
	Recovery   RecoveryConfig
	OTP        OTPConfig
	ResetToken ResetTokenConfig
	IPGuard    IPGuardConfig
	Tokens     TokensConfig
	Security   SecurityConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

// DefaultConfig returns the configuration Build starts from. Security
// key material is empty and must be supplied by the caller.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Recovery: RecoveryConfig{
			RequestWindows: []WindowRule{
				{Kind: "burst", Points: 1, Window: 30 * time.Second, Per: KeyByEmail},
				{Kind: "daily", Points: 5, Window: 24 * time.Hour, Per: KeyByEmail},
				{Kind: "daily-ip", Points: 20, Window: 24 * time.Hour, Per: KeyByIP},
			},
			ConfirmWindows: []WindowRule{
				{Kind: "burst", Points: 5, Window: time.Minute, Per: KeyByEmail},
				{Kind: "daily-ip", Points: 50, Window: 24 * time.Hour, Per: KeyByIP},
			},
			EnumerationDelay: 80 * time.Millisecond,
		},
		OTP: OTPConfig{
			Digits:   6,
			Attempts: 3,
			TTL:      5 * time.Minute,
		},
		ResetToken: ResetTokenConfig{
			TTL: 15 * time.Minute,
		},
		IPGuard: IPGuardConfig{
			Enabled:       true,
			Burst:         10,
			Window:        time.Second,
			BlockDuration: time.Hour,
			SweepInterval: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	for _, set := range [][]WindowRule{c.Recovery.RequestWindows, c.Recovery.ConfirmWindows} {
		for _, r := range set {
			if r.Kind == "" {
				return errors.New("window rule needs a kind")
			}
			if r.Points <= 0 {
				return fmt.Errorf("window %q: points must be positive", r.Kind)
			}
			if r.Window <= 0 {
				return fmt.Errorf("window %q: duration must be positive", r.Kind)
			}
		}
	}

	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if c.OTP.Attempts <= 0 {
		return errors.New("otp attempt budget must be positive")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp ttl must be positive")
	}
	if c.OTP.Strategy == otp.StrategyEncrypted && len(c.Security.SealKey) != 32 {
		return errors.New("encrypted otp strategy requires a 32-byte seal key")
	}

	if c.ResetToken.TTL <= 0 {
		return errors.New("reset token ttl must be positive")
	}
	if len(c.Security.SealKey) != 32 {
		return errors.New("seal key must be 32 bytes")
	}

	if c.IPGuard.Enabled {
		if c.IPGuard.Burst <= 0 || c.IPGuard.Window <= 0 {
			return errors.New("ip guard burst window misconfigured")
		}
		if c.IPGuard.BlockDuration <= 0 {
			return errors.New("ip guard block duration must be positive")
		}
	}

	return nil
}

func cloneConfig(c Config) Config {
	out := c

	out.Recovery.RequestWindows = append([]WindowRule(nil), c.Recovery.RequestWindows...)
	out.Recovery.ConfirmWindows = append([]WindowRule(nil), c.Recovery.ConfirmWindows...)

	out.Security.KeyPepper = append([]byte(nil), c.Security.KeyPepper...)
	out.Security.SealKey = append([]byte(nil), c.Security.SealKey...)

	out.Tokens.Access = clonePurpose(c.Tokens.Access)
	out.Tokens.Refresh = clonePurpose(c.Tokens.Refresh)
	out.Tokens.Verification = clonePurpose(c.Tokens.Verification)

	return out
}

func clonePurpose(p TokenPurposeConfig) TokenPurposeConfig {
	out := p
	out.Secret = append([]byte(nil), p.Secret...)
	if p.Retired != nil {
		out.Retired = make(map[string][]byte, len(p.Retired))
		for id, secret := range p.Retired {
			out.Retired[id] = append([]byte(nil), secret...)
		}
	}
	return out
}
