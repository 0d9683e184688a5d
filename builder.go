package gatekit

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xlenz/gatekit/ipguard"
	"github.com/0xlenz/gatekit/keycodec"
	"github.com/0xlenz/gatekit/otp"
	"github.com/0xlenz/gatekit/ratelimit"
	"github.com/0xlenz/gatekit/reset"
	"github.com/0xlenz/gatekit/token"
)

// Builder assembles an Engine. Configure during initialization, call
// Build once, then treat the resulting Engine as immutable.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store  CredentialStore
	hasher PasswordHasher
	sink   AuditSink
	clock  func() time.Time

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the backing store client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the identity collaborator.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithPasswordHasher sets the hashing collaborator.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink sets the audit destination. A nil sink with auditing
// enabled falls back to NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine clock, used in tests. The clock
// propagates to every time-sensitive component.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build wires the engine. Construction only allocates and validates;
// call Start afterwards for the pieces that touch Redis or spawn
// goroutines.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.hasher == nil {
		return nil, errors.New("password hasher required")
	}

	engine := &Engine{
		config: cfg,
		codec:  keycodec.New(cfg.Security.KeyPepper),
		now:    time.Now,
	}
	if b.clock != nil {
		engine.now = b.clock
	}

	engine.requestLimiter = buildComposite(b.redis, "recovery", cfg.Recovery.RequestWindows)
	engine.confirmLimiter = buildComposite(b.redis, "recovery-confirm", cfg.Recovery.ConfirmWindows)

	if cfg.IPGuard.Enabled {
		engine.guard = ipguard.New(b.redis, ipguard.Config{
			Burst:         cfg.IPGuard.Burst,
			Window:        cfg.IPGuard.Window,
			BlockDuration: cfg.IPGuard.BlockDuration,
			SweepInterval: cfg.IPGuard.SweepInterval,
			OnStoreError:  ipguard.Policy(cfg.IPGuard.OnStoreError),
		})
		engine.guard.WithClock(engine.now)
	}

	challenge, err := otp.New(b.redis, otp.Config{
		Digits:   cfg.OTP.Digits,
		Attempts: cfg.OTP.Attempts,
		TTL:      cfg.OTP.TTL,
		Strategy: cfg.OTP.Strategy,
		SealKey:  cfg.Security.SealKey,
	})
	if err != nil {
		return nil, err
	}
	challenge.WithClock(engine.now)
	engine.otp = challenge

	exchange, err := reset.New(b.redis, reset.Config{
		TTL:     cfg.ResetToken.TTL,
		SealKey: cfg.Security.SealKey,
	})
	if err != nil {
		return nil, err
	}
	exchange.WithClock(engine.now)
	engine.reset = exchange

	issuer, err := buildIssuer(cfg.Tokens)
	if err != nil {
		return nil, err
	}
	if issuer != nil {
		issuer.WithClock(engine.now)
	}
	engine.tokens = issuer

	engine.store = b.store
	engine.hasher = b.hasher
	engine.audit = newAuditDispatcher(cfg.Audit, b.sink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}

func buildComposite(client redis.UniversalClient, namespace string, rules []WindowRule) *ratelimit.Composite {
	out := make([]ratelimit.Rule, 0, len(rules))
	for _, r := range rules {
		key := ratelimit.BySubject
		if r.Per == KeyByIP {
			key = ratelimit.ByIP
		}
		out = append(out, ratelimit.Rule{
			Window: ratelimit.NewWindow(client, namespace+":"+r.Kind, r.Points, r.Window),
			Key:    key,
		})
	}
	return ratelimit.NewComposite(out...)
}

// buildIssuer maps token configuration onto per-purpose keychains.
// Purposes without a secret are simply absent from the issuer; a
// configuration with no secrets at all yields a nil issuer and the
// token operations report ErrEngineNotReady.
func buildIssuer(cfg TokensConfig) (*token.Issuer, error) {
	chains := make(map[token.Purpose]token.Keychain)

	add := func(p token.Purpose, pc TokenPurposeConfig) {
		if len(pc.Secret) == 0 {
			return
		}
		kc := token.Keychain{
			Active: token.Key{ID: pc.KeyID, Secret: pc.Secret},
			TTL:    pc.TTL,
		}
		for id, secret := range pc.Retired {
			kc.Retired = append(kc.Retired, token.Key{ID: id, Secret: secret})
		}
		chains[p] = kc
	}

	add(token.PurposeAccess, cfg.Access)
	add(token.PurposeRefresh, cfg.Refresh)
	add(token.PurposeVerification, cfg.Verification)

	if len(chains) == 0 {
		return nil, nil
	}

	return token.New(token.Config{
		Issuer:    cfg.Issuer,
		Leeway:    cfg.Leeway,
		Keychains: chains,
	})
}
