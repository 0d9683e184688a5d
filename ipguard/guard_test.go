package ipguard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGuard(t *testing.T, cfg Config) (*Guard, *miniredis.Miniredis, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newFakeClock()
	g := New(rdb, cfg)
	g.WithClock(clock.Now)
	t.Cleanup(g.Close)

	return g, mr, clock
}

func testConfig() Config {
	return Config{
		Burst:         2,
		Window:        time.Second,
		BlockDuration: time.Hour,
		SweepInterval: time.Minute,
	}
}

func tripGuard(t *testing.T, g *Guard, ip string) {
	t.Helper()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := g.Check(ctx, ip); err != nil {
			t.Fatalf("check %d unexpectedly failed: %v", i+1, err)
		}
	}
	if err := g.Check(ctx, ip); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked on trip, got %v", err)
	}
}

func TestGuardBlocksAfterTrip(t *testing.T) {
	g, mr, _ := newTestGuard(t, testConfig())
	ctx := context.Background()

	tripGuard(t, g, "203.0.113.7")

	// Blocked state is now served from memory.
	var blockedErr *BlockedError
	err := g.Check(ctx, "203.0.113.7")
	if !errors.As(err, &blockedErr) {
		t.Fatalf("expected *BlockedError, got %v", err)
	}
	if blockedErr.RetryAfter <= 0 {
		t.Fatalf("retry-after must be positive, got %v", blockedErr.RetryAfter)
	}

	// And persisted with a TTL in Redis.
	if !mr.Exists("blacklist:203.0.113.7") {
		t.Fatal("block entry missing from the persistent store")
	}
	if ttl := mr.TTL("blacklist:203.0.113.7"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("block TTL out of range: %v", ttl)
	}

	// Unrelated IPs are unaffected.
	if err := g.Check(ctx, "203.0.113.8"); err != nil {
		t.Fatalf("unrelated IP rejected: %v", err)
	}
}

func TestGuardUnblocksAfterDuration(t *testing.T) {
	g, mr, clock := newTestGuard(t, testConfig())
	ctx := context.Background()

	tripGuard(t, g, "203.0.113.7")

	clock.Advance(time.Hour + time.Second)
	mr.FastForward(time.Hour + time.Second)

	if err := g.Check(ctx, "203.0.113.7"); err != nil {
		t.Fatalf("IP must be allowed again after the block duration: %v", err)
	}
}

func TestGuardRehydratesFromStore(t *testing.T) {
	g, mr, clock := newTestGuard(t, testConfig())
	ctx := context.Background()

	tripGuard(t, g, "203.0.113.7")

	// Simulate a restart: a fresh guard over the same Redis.
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	g2 := New(rdb, testConfig())
	g2.WithClock(clock.Now)
	t.Cleanup(g2.Close)

	if err := g2.Rehydrate(ctx); err != nil {
		t.Fatalf("rehydrate failed: %v", err)
	}
	if g2.BlockedCount() != 1 {
		t.Fatalf("expected 1 rehydrated block, got %d", g2.BlockedCount())
	}
	if err := g2.Check(ctx, "203.0.113.7"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("rehydrated guard must reproduce the block, got %v", err)
	}
}

func TestGuardSweepPurgesExpiredEntries(t *testing.T) {
	g, _, clock := newTestGuard(t, testConfig())

	tripGuard(t, g, "203.0.113.7")
	if g.BlockedCount() != 1 {
		t.Fatalf("expected 1 block, got %d", g.BlockedCount())
	}

	clock.Advance(2 * time.Hour)
	g.sweep()

	if g.BlockedCount() != 0 {
		t.Fatalf("sweep left %d expired entries", g.BlockedCount())
	}
}

func TestGuardFailClosed(t *testing.T) {
	g, mr, _ := newTestGuard(t, testConfig())
	ctx := context.Background()

	mr.Close()

	if err := g.Check(ctx, "203.0.113.7"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("fail-closed must surface the outage, got %v", err)
	}
}

func TestGuardFailOpen(t *testing.T) {
	cfg := testConfig()
	cfg.OnStoreError = FailOpen
	g, mr, _ := newTestGuard(t, cfg)
	ctx := context.Background()

	// A block cached before the outage keeps rejecting.
	tripGuard(t, g, "203.0.113.7")

	mr.Close()

	if err := g.Check(ctx, "203.0.113.7"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("cached block must survive the outage, got %v", err)
	}
	if err := g.Check(ctx, "203.0.113.8"); err != nil {
		t.Fatalf("fail-open must allow unknown IPs during an outage, got %v", err)
	}
}

func TestGuardIgnoresEmptyIP(t *testing.T) {
	g, _, _ := newTestGuard(t, testConfig())

	if err := g.Check(context.Background(), ""); err != nil {
		t.Fatalf("empty IP must be a no-op, got %v", err)
	}
}
