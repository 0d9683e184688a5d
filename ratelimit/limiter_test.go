package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func TestWindowBudgetNeverExceeded(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	w := NewWindow(rdb, "recovery:burst", 3, time.Minute)

	for i := 0; i < 3; i++ {
		res, err := w.Consume(ctx, "subject")
		if err != nil {
			t.Fatalf("consume %d failed: %v", i+1, err)
		}
		if !res.Allowed {
			t.Fatalf("consume %d unexpectedly denied", i+1)
		}
		if want := 2 - i; res.Remaining != want {
			t.Fatalf("consume %d remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	res, err := w.Consume(ctx, "subject")
	if err != nil {
		t.Fatalf("consume 4 failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("4th consume within the window must be denied")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %v", res.RetryAfter)
	}
}

func TestWindowKeysAreIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	w := NewWindow(rdb, "recovery:burst", 1, time.Minute)

	if res, _ := w.Consume(ctx, "a"); !res.Allowed {
		t.Fatal("first consume for key a denied")
	}
	if res, _ := w.Consume(ctx, "b"); !res.Allowed {
		t.Fatal("key b must not be affected by key a's window")
	}
}

func TestWindowResetsAfterDuration(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	w := NewWindow(rdb, "recovery:burst", 1, 30*time.Second)

	if res, _ := w.Consume(ctx, "subject"); !res.Allowed {
		t.Fatal("first consume denied")
	}
	if res, _ := w.Consume(ctx, "subject"); res.Allowed {
		t.Fatal("second consume within window must be denied")
	}

	mr.FastForward(31 * time.Second)

	res, err := w.Consume(ctx, "subject")
	if err != nil {
		t.Fatalf("consume after reset failed: %v", err)
	}
	if !res.Allowed {
		t.Fatal("window must reset once the TTL elapses")
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	w := NewWindow(rdb, "recovery:burst", 2, time.Minute)

	for i := 0; i < 5; i++ {
		if _, err := w.Peek(ctx, "subject"); err != nil {
			t.Fatalf("peek failed: %v", err)
		}
	}

	res, err := w.Peek(ctx, "subject")
	if err != nil {
		t.Fatalf("peek failed: %v", err)
	}
	if res.Remaining != 2 {
		t.Fatalf("peeking must not spend points, remaining = %d", res.Remaining)
	}

	if res, _ := w.Consume(ctx, "subject"); !res.Allowed || res.Remaining != 1 {
		t.Fatalf("budget was consumed by peeks: %+v", res)
	}
}

func TestPeekReportsExhaustion(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	w := NewWindow(rdb, "recovery:burst", 1, time.Minute)

	if _, err := w.Consume(ctx, "subject"); err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	res, err := w.Peek(ctx, "subject")
	if err != nil {
		t.Fatalf("peek failed: %v", err)
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfter <= 0 {
		t.Fatal("peek on an exhausted window must carry a retry-after")
	}
}

func TestWindowStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	w := NewWindow(rdb, "recovery:burst", 1, time.Minute)
	mr.Close()

	if _, err := w.Consume(ctx, "subject"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := w.Peek(ctx, "subject"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from peek, got %v", err)
	}
}
