package gatekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xlenz/gatekit/ipguard"
	"github.com/0xlenz/gatekit/keycodec"
	"github.com/0xlenz/gatekit/otp"
	"github.com/0xlenz/gatekit/ratelimit"
	"github.com/0xlenz/gatekit/reset"
	"github.com/0xlenz/gatekit/token"
)

// Engine is the credential recovery and abuse control core. Construct
// through the Builder, call Start once, and Close on shutdown. All
// methods are safe for concurrent use.
type Engine struct {
	config         Config
	codec          *keycodec.Codec
	requestLimiter *ratelimit.Composite
	confirmLimiter *ratelimit.Composite
	guard          *ipguard.Guard
	otp            *otp.Challenge
	reset          *reset.Exchange
	tokens         *token.Issuer
	audit          *auditDispatcher
	metrics        *Metrics
	store          CredentialStore
	hasher         PasswordHasher
	now            func() time.Time
}

// Start restores persisted state and launches background work: the IP
// guard's blocklist is rehydrated from Redis and its sweeper started.
// Call once after Build.
func (e *Engine) Start(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.guard == nil {
		return nil
	}

	if err := e.guard.Rehydrate(ctx); err != nil {
		if e.config.IPGuard.OnStoreError == FailClosed {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// Fail-open starts with an empty cache; Redis entries still
		// apply once the store recovers.
	}
	e.guard.StartSweeper()

	return nil
}

// Close stops background goroutines and flushes buffered audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.guard != nil {
		e.guard.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were shed under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, subject string, failure error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if failure != nil {
		event.Error = failure.Error()
	}

	e.audit.Emit(ctx, event)
}

// checkIPGuard runs the blocklist tier for the request's IP, if the
// guard is enabled and the context carries one.
func (e *Engine) checkIPGuard(ctx context.Context, subject string) error {
	if e.guard == nil {
		return nil
	}

	err := e.guard.Check(ctx, clientIPFromContext(ctx))
	if err == nil {
		return nil
	}

	var blocked *ipguard.BlockedError
	if errors.As(err, &blocked) {
		e.metricInc(MetricIPBlocked)
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(ctx, AuditIPBlocked, false, subject, ErrRateLimited, nil)
		return &RateLimitError{RetryAfter: blocked.RetryAfter}
	}

	return e.storeFault(ctx, subject, err)
}

// applyLimiter runs a composite rule set and converts its outcome to
// the public error surface. A store outage defers to the recovery
// failure policy: fail-open lets the request through unthrottled.
func (e *Engine) applyLimiter(ctx context.Context, limiter *ratelimit.Composite, subject, eventType string) error {
	res, err := limiter.Apply(ctx, ratelimit.Request{
		Subject: subject,
		IP:      clientIPFromContext(ctx),
	})
	if err != nil {
		if e.config.Recovery.OnStoreError == FailOpen {
			return nil
		}
		return e.storeFault(ctx, subject, err)
	}
	if !res.Allowed {
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(ctx, eventType, false, subject, ErrRateLimited, nil)
		return &RateLimitError{RetryAfter: res.RetryAfter}
	}

	return nil
}

func (e *Engine) storeFault(ctx context.Context, subject string, err error) error {
	e.metricInc(MetricStoreError)
	e.emitAudit(ctx, AuditStoreError, false, subject, err, nil)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// sleepEnumerationDelay pads the response for an unknown identifier so
// its latency resembles the code generation path.
func (e *Engine) sleepEnumerationDelay(ctx context.Context) {
	delay := e.config.Recovery.EnumerationDelay
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (e *Engine) ready() error {
	if e == nil || e.otp == nil || e.reset == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}
