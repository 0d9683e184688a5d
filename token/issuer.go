package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid covers tampered signatures and any token that
	// fails cryptographic verification.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is reported distinctly from malformed input.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is input that does not parse as a token.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrPurposeMismatch is a cryptographically valid token presented
	// for an operation expecting a different purpose.
	ErrPurposeMismatch = errors.New("token purpose mismatch")
	// ErrUnknownKeyID is a token signed with a key identifier absent
	// from the expected purpose's keychain.
	ErrUnknownKeyID = errors.New("unknown token key id")
	// ErrUnknownPurpose is a purpose outside the closed set.
	ErrUnknownPurpose = errors.New("unknown token purpose")
)

// Purpose is the single intended use of a signed token, enforced at
// verification time independent of signature validity.
type Purpose string

const (
	PurposeAccess       Purpose = "access"
	PurposeRefresh      Purpose = "refresh"
	PurposeVerification Purpose = "verification"
)

func (p Purpose) valid() bool {
	switch p {
	case PurposeAccess, PurposeRefresh, PurposeVerification:
		return true
	}
	return false
}

// Key is one signing secret with its identifier.
type Key struct {
	ID     string
	Secret []byte
}

// Keychain holds a purpose's active signing key, any retired keys
// still accepted for verification, and the purpose's token lifetime.
// Each purpose carries an independent chain, so rotating or burning
// one purpose's secrets never touches outstanding tokens of another.
type Keychain struct {
	Active  Key
	Retired []Key
	TTL     time.Duration
}

func (kc Keychain) lookup(kid string) ([]byte, bool) {
	if kid == kc.Active.ID {
		return kc.Active.Secret, true
	}
	for _, k := range kc.Retired {
		if kid == k.ID {
			return k.Secret, true
		}
	}
	return nil, false
}

// Config for the issuer.
type Config struct {
	// Issuer is the iss claim stamped on and required of every token.
	Issuer string
	// Leeway tolerates clock skew during verification; at most two
	// minutes.
	Leeway time.Duration
	// Keychains maps every purpose this issuer handles to its chain.
	Keychains map[Purpose]Keychain
}

// Claims carried by every issued token.
type Claims struct {
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies HS256 tokens with purpose binding. Safe
// for concurrent use after construction.
type Issuer struct {
	cfg Config
	now func() time.Time
}

// New validates the configuration and returns an Issuer. Every
// keychain needs an active key with a non-empty id and secret and a
// positive TTL.
func New(cfg Config) (*Issuer, error) {
	if len(cfg.Keychains) == 0 {
		return nil, errors.New("no keychains configured")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	for p, kc := range cfg.Keychains {
		if !p.valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, p)
		}
		if kc.Active.ID == "" {
			return nil, fmt.Errorf("purpose %q: active key needs an id", p)
		}
		if len(kc.Active.Secret) < 32 {
			return nil, fmt.Errorf("purpose %q: secret must be at least 32 bytes", p)
		}
		if kc.TTL <= 0 {
			return nil, fmt.Errorf("purpose %q: ttl must be positive", p)
		}
		for _, k := range kc.Retired {
			if k.ID == "" || len(k.Secret) == 0 {
				return nil, fmt.Errorf("purpose %q: malformed retired key", p)
			}
		}
	}

	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// WithClock overrides the internal clock, used in tests.
func (i *Issuer) WithClock(clock func() time.Time) {
	if clock != nil {
		i.now = clock
	}
}

// Issue signs a token for subjectID with the purpose's default TTL.
func (i *Issuer) Issue(subjectID string, p Purpose) (string, error) {
	kc, ok := i.cfg.Keychains[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPurpose, p)
	}
	return i.issue(subjectID, p, kc, kc.TTL)
}

// IssueWithTTL signs a token with an explicit lifetime, overriding the
// purpose default.
func (i *Issuer) IssueWithTTL(subjectID string, p Purpose, ttl time.Duration) (string, error) {
	kc, ok := i.cfg.Keychains[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPurpose, p)
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	return i.issue(subjectID, p, kc, ttl)
}

func (i *Issuer) issue(subjectID string, p Purpose, kc Keychain, ttl time.Duration) (string, error) {
	now := i.now()

	claims := Claims{
		Purpose: string(p),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = kc.Active.ID

	return tok.SignedString(kc.Active.Secret)
}

// Verify checks tokenStr against the keychain of the expected purpose.
// The key identifier must be known to that chain, the signature must
// verify under it, and the embedded purpose claim must match: a
// verification token can never pass as an access token even though its
// signature is valid.
func (i *Issuer) Verify(tokenStr string, want Purpose) (*Claims, error) {
	kc, ok := i.cfg.Keychains[want]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, want)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.cfg.Leeway))
	}
	if i.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.cfg.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKeyID
		}
		secret, ok := kc.lookup(kid)
		if !ok {
			return nil, ErrUnknownKeyID
		}
		return secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownKeyID):
			return nil, ErrUnknownKeyID
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != string(want) {
		return nil, ErrPurposeMismatch
	}

	return claims, nil
}
