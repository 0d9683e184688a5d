package gatekit

import (
	"context"
	"errors"

	"github.com/0xlenz/gatekit/otp"
	"github.com/0xlenz/gatekit/reset"
)

// RequestPasswordReset starts a recovery flow for the account behind
// email. On success the freshly generated one-time code is returned for
// delivery; it is never stored in plaintext. Any pending code for the
// same account is superseded.
//
// ErrIdentityNotFound means no such account exists. Callers exposing
// this over HTTP must present it identically to success, otherwise the
// endpoint becomes an account oracle.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	subject := e.codec.DeriveEmail(email)

	if err := e.checkIPGuard(ctx, subject); err != nil {
		return "", err
	}
	if err := e.applyLimiter(ctx, e.requestLimiter, subject, AuditRecoveryDenied); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRecoveryRequestDenied)
		}
		return "", err
	}

	identity, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			// The limiter charge above already happened, so unknown
			// identifiers burn budget like real ones.
			e.sleepEnumerationDelay(ctx)
			e.emitAudit(ctx, AuditRecoveryRequested, false, subject, ErrIdentityNotFound, nil)
			return "", ErrIdentityNotFound
		}
		return "", err
	}

	code, err := e.otp.Generate(ctx, subject, identity.ID)
	if err != nil {
		if errors.Is(err, otp.ErrStoreUnavailable) {
			return "", e.storeFault(ctx, subject, err)
		}
		return "", err
	}

	e.metricInc(MetricRecoveryRequest)
	e.emitAudit(ctx, AuditRecoveryRequested, true, subject, nil, nil)

	return code, nil
}

// VerifyPasswordResetOTP checks a submitted code and, on success,
// exchanges it for a single-use reset token. The code is consumed
// whether or not the caller proceeds; a wrong code spends one attempt
// from the challenge budget.
func (e *Engine) VerifyPasswordResetOTP(ctx context.Context, email, code string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	subject := e.codec.DeriveEmail(email)

	if err := e.checkIPGuard(ctx, subject); err != nil {
		return "", err
	}
	if err := e.applyLimiter(ctx, e.confirmLimiter, subject, AuditRecoveryVerifyFailed); err != nil {
		return "", err
	}

	res, err := e.otp.Verify(ctx, subject, code)
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrCodeMismatch):
			e.metricInc(MetricRecoveryVerifyFailure)
			e.emitAudit(ctx, AuditRecoveryVerifyFailed, false, subject, ErrChallengeInvalid, nil)
			return "", &ChallengeError{AttemptsLeft: res.AttemptsLeft}
		case errors.Is(err, otp.ErrAttemptsExceeded):
			e.metricInc(MetricOTPExhausted)
			e.metricInc(MetricRecoveryVerifyFailure)
			e.emitAudit(ctx, AuditRecoveryVerifyFailed, false, subject, ErrChallengeExhausted, nil)
			return "", ErrChallengeExhausted
		case errors.Is(err, otp.ErrNotFound):
			e.metricInc(MetricRecoveryVerifyFailure)
			e.emitAudit(ctx, AuditRecoveryVerifyFailed, false, subject, ErrChallengeInvalid, nil)
			return "", ErrChallengeInvalid
		case errors.Is(err, otp.ErrStoreUnavailable):
			return "", e.storeFault(ctx, subject, err)
		default:
			return "", err
		}
	}

	resetToken, err := e.reset.Issue(ctx, subject, res.OwnerID)
	if err != nil {
		if errors.Is(err, reset.ErrStoreUnavailable) {
			return "", e.storeFault(ctx, subject, err)
		}
		return "", err
	}

	e.metricInc(MetricRecoveryVerifySuccess)
	e.emitAudit(ctx, AuditRecoveryVerified, true, subject, nil, nil)

	return resetToken, nil
}

// ConfirmPasswordReset redeems a reset token and installs the new
// password. The token is single use: of two concurrent confirmations
// exactly one succeeds. Absence, expiry, prior redemption, and
// mismatch are all reported as ErrChallengeInvalid.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, resetToken, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	subject := e.codec.DeriveEmail(email)

	if err := e.checkIPGuard(ctx, subject); err != nil {
		return err
	}

	ownerID, err := e.reset.Redeem(ctx, subject, resetToken)
	if err != nil {
		switch {
		case errors.Is(err, reset.ErrTokenNotFound):
			e.metricInc(MetricRecoveryConfirmFailure)
			e.emitAudit(ctx, AuditRecoveryConfirmFailed, false, subject, ErrChallengeInvalid, nil)
			return ErrChallengeInvalid
		case errors.Is(err, reset.ErrStoreUnavailable):
			return e.storeFault(ctx, subject, err)
		default:
			return err
		}
	}

	digest, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricRecoveryConfirmFailure)
		e.emitAudit(ctx, AuditRecoveryConfirmFailed, false, subject, err, nil)
		return err
	}

	if err := e.store.UpdatePassword(ctx, ownerID, digest); err != nil {
		e.metricInc(MetricRecoveryConfirmFailure)
		e.emitAudit(ctx, AuditRecoveryConfirmFailed, false, subject, err, nil)
		return err
	}

	// A code issued after verification but before confirmation would
	// otherwise stay live against the old flow.
	_ = e.otp.Invalidate(ctx, subject)

	e.metricInc(MetricRecoveryConfirmSuccess)
	e.emitAudit(ctx, AuditRecoveryConfirmed, true, subject, nil, nil)

	return nil
}

// InvalidateRecovery cancels any pending challenge and outstanding
// reset token for the account, for example after the user signs in
// normally.
func (e *Engine) InvalidateRecovery(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	subject := e.codec.DeriveEmail(email)

	if err := e.otp.Invalidate(ctx, subject); err != nil {
		return e.storeFault(ctx, subject, err)
	}
	if err := e.reset.Invalidate(ctx, subject); err != nil {
		return e.storeFault(ctx, subject, err)
	}

	return nil
}
