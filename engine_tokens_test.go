package gatekit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func buildTokenEngine(t *testing.T, opts ...func(*Builder)) *Engine {
	t.Helper()

	cfg := testConfig()
	cfg.Tokens = testTokensConfig()

	engine, _, _ := buildTestEngine(t, cfg, opts...)
	return engine
}

func TestIssueSessionAndVerify(t *testing.T) {
	engine := buildTokenEngine(t)
	ctx := context.Background()

	pair, err := engine.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	subject, err := engine.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("expected subject u1, got %q", subject)
	}

	if _, err := engine.VerifyRefresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
}

func TestTokenPurposeSeparation(t *testing.T) {
	engine := buildTokenEngine(t)
	ctx := context.Background()

	pair, err := engine.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	// A refresh token never passes as access and vice versa, even
	// though both signatures are valid.
	if _, err := engine.VerifyAccess(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for cross-purpose use, got %v", err)
	}
	if _, err := engine.VerifyRefresh(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for cross-purpose use, got %v", err)
	}
}

func TestRefreshSessionRotatesPair(t *testing.T) {
	engine := buildTokenEngine(t)
	ctx := context.Background()

	pair, err := engine.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	next, err := engine.RefreshSession(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}
	if subject, err := engine.VerifyAccess(ctx, next.AccessToken); err != nil || subject != "u1" {
		t.Fatalf("expected fresh access token for u1, got subject=%q err=%v", subject, err)
	}

	if _, err := engine.RefreshSession(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access token to fail refresh, got %v", err)
	}
}

func TestVerificationTokenRoundTrip(t *testing.T) {
	engine := buildTokenEngine(t)
	ctx := context.Background()

	signed, err := engine.IssueVerificationToken(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueVerificationToken failed: %v", err)
	}

	subject, err := engine.VerifyVerificationToken(ctx, signed)
	if err != nil {
		t.Fatalf("VerifyVerificationToken failed: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("expected subject u1, got %q", subject)
	}

	if _, err := engine.VerifyAccess(ctx, signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected verification token rejected as access, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	clk := newFakeClock()
	engine := buildTokenEngine(t, func(b *Builder) {
		b.WithClock(clk.Now)
	})
	ctx := context.Background()

	pair, err := engine.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	clk.Advance(16 * time.Minute)

	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired access token rejected, got %v", err)
	}
	// Refresh lives longer and still verifies.
	if _, err := engine.VerifyRefresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("expected refresh token still valid: %v", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	engine := buildTokenEngine(t)
	ctx := context.Background()

	pair, err := engine.IssueSession(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	if _, err := engine.VerifyAccess(ctx, tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected tampered token rejected, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricTokenRejected] == 0 {
		t.Fatal("expected token rejection to be counted")
	}
}

func TestTokensUnconfiguredNotReady(t *testing.T) {
	engine, _, _ := buildTestEngine(t, testConfig())

	if _, err := engine.IssueSession(context.Background(), "u1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady without token config, got %v", err)
	}
	if _, err := engine.VerifyAccess(context.Background(), "anything"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
