package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xlenz/gatekit/internal"
	"github.com/0xlenz/gatekit/internal/seal"
)

var (
	// ErrNotFound covers every record that cannot be verified against:
	// never issued, expired, already consumed, or exhausted. Callers
	// must not distinguish these cases outward.
	ErrNotFound = errors.New("otp record not found")
	// ErrCodeMismatch is a wrong candidate with attempts remaining.
	ErrCodeMismatch = errors.New("otp code mismatch")
	// ErrAttemptsExceeded is the wrong candidate that spent the last
	// attempt; the record is gone and later attempts see ErrNotFound.
	ErrAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrStoreUnavailable indicates the record store is unreachable.
	ErrStoreUnavailable = errors.New("otp store unavailable")
	// ErrNotReversible is returned by Peek under the hashed strategy.
	ErrNotReversible = seal.ErrNotReversible
)

// Strategy selects the at-rest form of the code.
type Strategy int

const (
	// StrategyHashed stores a one-way digest. Default; strictly
	// preferable for a code only ever compared for equality.
	StrategyHashed Strategy = iota
	// StrategyEncrypted stores a reversible box so the plaintext can
	// be recovered for masked display or resend.
	StrategyEncrypted
)

// Config tunes the challenge.
type Config struct {
	// Digits is the code length; 6 by convention.
	Digits int
	// Attempts is the verification budget per issued code.
	Attempts int
	// TTL is the hard expiry of a pending code.
	TTL time.Duration
	// Strategy selects hashed (default) or encrypted storage.
	Strategy Strategy
	// SealKey is the 32-byte key for StrategyEncrypted; unused for
	// StrategyHashed.
	SealKey []byte
	// Prefix namespaces record keys; defaults to "otp".
	Prefix string
}

// Result reports a verification outcome.
type Result struct {
	// OwnerID identifies the account the challenge was issued for.
	// Set only on success.
	OwnerID string
	// AttemptsLeft accompanies ErrCodeMismatch so the caller can
	// inform the user.
	AttemptsLeft int
}

// Challenge generates, stores, and verifies short-lived numeric codes
// with a bounded attempt budget. At most one live code exists per
// subject: Generate unconditionally replaces any pending record.
type Challenge struct {
	redis  redis.UniversalClient
	cfg    Config
	sealer seal.Sealer
	now    func() time.Time
}

// New constructs a Challenge. StrategyEncrypted requires a 32-byte
// SealKey.
func New(redisClient redis.UniversalClient, cfg Config) (*Challenge, error) {
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("otp ttl must be positive")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "otp"
	}

	var sealer seal.Sealer
	switch cfg.Strategy {
	case StrategyHashed:
		sealer = seal.NewHash()
	case StrategyEncrypted:
		s, err := seal.NewAEAD(cfg.SealKey)
		if err != nil {
			return nil, err
		}
		sealer = s
	default:
		return nil, errors.New("unknown otp strategy")
	}

	return &Challenge{
		redis:  redisClient,
		cfg:    cfg,
		sealer: sealer,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (c *Challenge) WithClock(clock func() time.Time) {
	if clock != nil {
		c.now = clock
	}
}

func (c *Challenge) key(subjectKey string) string {
	return c.cfg.Prefix + ":" + subjectKey
}

// Generate issues a fresh code for the subject, replacing any pending
// record so only the newest code can ever verify. The plaintext is
// returned exactly once, for delivery; the store holds only the
// sealed form.
func (c *Challenge) Generate(ctx context.Context, subjectKey, ownerID string) (string, error) {
	code, err := internal.NewNumericCode(c.cfg.Digits)
	if err != nil {
		return "", err
	}

	sealed, err := c.sealer.Seal(code)
	if err != nil {
		return "", err
	}

	encoded, err := encodeRecord(&record{
		Strategy:     c.cfg.Strategy,
		AttemptsLeft: uint16(c.cfg.Attempts),
		ExpiresAt:    c.now().Add(c.cfg.TTL).Unix(),
		OwnerID:      ownerID,
		SealedCode:   sealed,
	})
	if err != nil {
		return "", err
	}

	// Plain SET: superseding a pending challenge is intentional.
	if err := c.redis.Set(ctx, c.key(subjectKey), encoded, c.cfg.TTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return code, nil
}

// Verify checks candidate against the pending record. A match deletes
// the record and succeeds (single use). A mismatch decrements the
// attempt budget atomically; the attempt that reaches zero deletes the
// record and reports exhaustion, after which the subject looks like it
// never had a challenge.
//
// The load-compare-mutate cycle runs under WATCH so concurrent
// verifications of the same subject cannot double-spend an attempt or
// both consume a match.
func (c *Challenge) Verify(ctx context.Context, subjectKey, candidate string) (Result, error) {
	const maxRetries = 4
	key := c.key(subjectKey)

	for i := 0; i < maxRetries; i++ {
		var out Result

		err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}

			if c.now().Unix() > rec.ExpiresAt {
				return delAndReturn(ctx, tx, key, ErrNotFound)
			}

			match, err := c.sealer.Compare(rec.SealedCode, candidate)
			if err != nil {
				return err
			}

			if !match {
				rec.AttemptsLeft--
				if rec.AttemptsLeft == 0 {
					return delAndReturn(ctx, tx, key, ErrAttemptsExceeded)
				}

				ttl := time.Unix(rec.ExpiresAt, 0).Sub(c.now())
				if ttl <= 0 {
					return delAndReturn(ctx, tx, key, ErrNotFound)
				}

				updated, err := encodeRecord(rec)
				if err != nil {
					return err
				}
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				}); err != nil {
					return err
				}

				out = Result{AttemptsLeft: int(rec.AttemptsLeft)}
				return ErrCodeMismatch
			}

			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			}); err != nil {
				return err
			}

			out = Result{OwnerID: rec.OwnerID}
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return Result{}, ErrNotFound
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrAttemptsExceeded):
				return Result{}, err
			case errors.Is(err, ErrCodeMismatch):
				return out, err
			default:
				return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return out, nil
	}

	return Result{}, ErrNotFound
}

// Peek recovers the pending plaintext code for masked display or
// resend. Only available under StrategyEncrypted; the hashed strategy
// returns ErrNotReversible.
func (c *Challenge) Peek(ctx context.Context, subjectKey string) (ownerID, code string, err error) {
	data, err := c.redis.Get(ctx, c.key(subjectKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return "", "", err
	}
	if c.now().Unix() > rec.ExpiresAt {
		return "", "", ErrNotFound
	}

	code, err = c.sealer.Open(rec.SealedCode)
	if err != nil {
		return "", "", err
	}

	return rec.OwnerID, code, nil
}

// Invalidate removes any pending challenge for the subject.
func (c *Challenge) Invalidate(ctx context.Context, subjectKey string) error {
	if err := c.redis.Del(ctx, c.key(subjectKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func delAndReturn(ctx context.Context, tx *redis.Tx, key string, ret error) error {
	if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	}); err != nil {
		return err
	}
	return ret
}
