package reset

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/0xlenz/gatekit/internal/seal"
)

const recordVersionV1 = 1

var (
	// ErrTokenNotFound covers absence, expiry, prior redemption, and
	// mismatch alike; callers must not reveal which.
	ErrTokenNotFound = errors.New("reset token not found")
	// ErrStoreUnavailable indicates the record store is unreachable.
	ErrStoreUnavailable = errors.New("reset token store unavailable")
)

// Config tunes the exchange.
type Config struct {
	// TTL bounds how long an issued token stays redeemable.
	TTL time.Duration
	// SealKey is the 32-byte key sealing tokens at rest.
	SealKey []byte
	// Prefix namespaces record keys; defaults to "reset-token".
	Prefix string
}

// Exchange issues opaque single-use tokens bound to an identity. The
// plaintext token exists outside the requester's hands only in the
// return value of Issue; at rest it is sealed. Redemption is an atomic
// check-and-delete, so a token redeemed twice fails the second time
// even under concurrent attempts.
type Exchange struct {
	redis  redis.UniversalClient
	cfg    Config
	sealer *seal.AEADSealer
	now    func() time.Time
}

// New constructs an Exchange. SealKey must be 32 bytes.
func New(redisClient redis.UniversalClient, cfg Config) (*Exchange, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("reset token ttl must be positive")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "reset-token"
	}

	sealer, err := seal.NewAEAD(cfg.SealKey)
	if err != nil {
		return nil, err
	}

	return &Exchange{
		redis:  redisClient,
		cfg:    cfg,
		sealer: sealer,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (e *Exchange) WithClock(clock func() time.Time) {
	if clock != nil {
		e.now = clock
	}
}

func (e *Exchange) key(subjectKey string) string {
	return e.cfg.Prefix + ":" + subjectKey
}

// Issue mints a fresh opaque token for the subject and stores its
// sealed form with the configured TTL. Issuing again for the same
// subject replaces the outstanding token.
func (e *Exchange) Issue(ctx context.Context, subjectKey, ownerID string) (string, error) {
	token := uuid.NewString()

	sealed, err := e.sealer.Seal(token)
	if err != nil {
		return "", err
	}

	encoded, err := encodeRecord(&record{
		ExpiresAt:   e.now().Add(e.cfg.TTL).Unix(),
		OwnerID:     ownerID,
		SealedToken: sealed,
	})
	if err != nil {
		return "", err
	}

	if err := e.redis.Set(ctx, e.key(subjectKey), encoded, e.cfg.TTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return token, nil
}

// Redeem consumes the subject's outstanding token if presented
// matches. The read, compare, and delete run under WATCH: of two
// concurrent redemptions exactly one succeeds, the other observes a
// missing record. Mismatch and absence are reported identically.
func (e *Exchange) Redeem(ctx context.Context, subjectKey, presented string) (string, error) {
	const maxRetries = 4
	key := e.key(subjectKey)

	for i := 0; i < maxRetries; i++ {
		var ownerID string

		err := e.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}

			del := func(ret error) error {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return ret
			}

			if e.now().Unix() > rec.ExpiresAt {
				return del(ErrTokenNotFound)
			}

			match, err := e.sealer.Compare(rec.SealedToken, presented)
			if err != nil {
				return err
			}
			if !match {
				// The record survives a mismatch; the surrounding
				// limiter bounds guessing.
				return ErrTokenNotFound
			}

			if err := del(nil); err != nil {
				return err
			}
			ownerID = rec.OwnerID
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, ErrTokenNotFound):
				return "", ErrTokenNotFound
			default:
				return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return ownerID, nil
	}

	return "", ErrTokenNotFound
}

// Invalidate removes the subject's outstanding token, if any.
func (e *Exchange) Invalidate(ctx context.Context, subjectKey string) error {
	if err := e.redis.Del(ctx, e.key(subjectKey)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

type record struct {
	ExpiresAt   int64
	OwnerID     string
	SealedToken []byte
}

func encodeRecord(r *record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	if len(r.OwnerID) > 65535 {
		return nil, errors.New("reset record owner id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.OwnerID))); err != nil {
		return nil, err
	}
	buf.WriteString(r.OwnerID)

	if len(r.SealedToken) > 65535 {
		return nil, errors.New("reset record sealed token too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.SealedToken))); err != nil {
		return nil, err
	}
	buf.Write(r.SealedToken)

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}

	r := &record{}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}

	var ownerLen uint16
	if err := binary.Read(reader, binary.BigEndian, &ownerLen); err != nil {
		return nil, err
	}
	owner := make([]byte, ownerLen)
	if _, err := io.ReadFull(reader, owner); err != nil {
		return nil, err
	}
	r.OwnerID = string(owner)

	var sealedLen uint16
	if err := binary.Read(reader, binary.BigEndian, &sealedLen); err != nil {
		return nil, err
	}
	r.SealedToken = make([]byte, sealedLen)
	if _, err := io.ReadFull(reader, r.SealedToken); err != nil {
		return nil, err
	}

	return r, nil
}
