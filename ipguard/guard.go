package ipguard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xlenz/gatekit/ratelimit"
)

var (
	// ErrBlocked indicates the IP is on the blocklist.
	ErrBlocked = errors.New("ip blocked")
	// ErrStoreUnavailable indicates the blocklist store is unreachable
	// and the configured policy is fail-closed.
	ErrStoreUnavailable = errors.New("ip guard store unavailable")
)

// BlockedError carries the remaining block duration alongside
// ErrBlocked.
type BlockedError struct {
	IP         string
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("ip %s blocked for %s", e.IP, e.RetryAfter)
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// Policy decides how Check behaves when Redis is unreachable.
type Policy int

const (
	// FailClosed rejects requests when the store is down (default).
	FailClosed Policy = iota
	// FailOpen serves from the in-memory blocklist only, allowing
	// anything not already cached as blocked.
	FailOpen
)

// Config tunes the guard.
type Config struct {
	// Burst and Window define the per-IP trip detector, e.g. 10
	// requests per second.
	Burst  int
	Window time.Duration
	// BlockDuration is how long a tripped IP stays blocked.
	BlockDuration time.Duration
	// SweepInterval is how often expired in-memory entries are purged.
	SweepInterval time.Duration
	// Prefix namespaces blocklist keys; defaults to "blacklist".
	Prefix string
	// OnStoreError selects fail-open or fail-closed behavior.
	OnStoreError Policy
}

// Guard promotes abusive IPs to a temporary blocklist. The persistent
// entry in Redis is the source of truth and survives restarts through
// Rehydrate; the in-memory map is the fast path consulted before any
// network round-trip.
//
// State machine per IP: OK -> (limit exceeded) -> BLOCKED -> (TTL
// elapses) -> OK.
type Guard struct {
	redis  redis.UniversalClient
	cfg    Config
	window *ratelimit.Window
	now    func() time.Time

	mu      sync.RWMutex
	blocked map[string]time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Guard. Call Rehydrate after construction to restore
// blocks persisted by a previous process, and StartSweeper to enable
// periodic purging of expired in-memory entries.
func New(redisClient redis.UniversalClient, cfg Config) *Guard {
	if cfg.Prefix == "" {
		cfg.Prefix = "blacklist"
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return &Guard{
		redis:     redisClient,
		cfg:       cfg,
		window:    ratelimit.NewWindow(redisClient, cfg.Prefix+":win", cfg.Burst, cfg.Window),
		now:       time.Now,
		blocked:   make(map[string]time.Time),
		sweepStop: make(chan struct{}),
	}
}

// WithClock overrides the internal clock, used in tests.
func (g *Guard) WithClock(clock func() time.Time) {
	if clock != nil {
		g.now = clock
	}
}

func (g *Guard) key(ip string) string {
	return g.cfg.Prefix + ":" + ip
}

// Check consults the in-memory blocklist first; a live entry
// short-circuits to blocked without touching Redis. Otherwise one
// point is consumed from the per-IP window, and a trip promotes the IP
// to the blocklist in both the store and the cache.
func (g *Guard) Check(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}

	if until, ok := g.cachedBlock(ip); ok {
		return &BlockedError{IP: ip, RetryAfter: until.Sub(g.now())}
	}

	res, err := g.window.Consume(ctx, ip)
	if err != nil {
		if g.cfg.OnStoreError == FailOpen {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if res.Allowed {
		return nil
	}

	until := g.now().Add(g.cfg.BlockDuration)
	if err := g.redis.Set(ctx, g.key(ip), until.UnixMilli(), g.cfg.BlockDuration).Err(); err != nil {
		if g.cfg.OnStoreError == FailClosed {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// Fail-open still records the block locally so this process
		// keeps rejecting the offender.
	}

	g.mu.Lock()
	g.blocked[ip] = until
	g.mu.Unlock()

	return &BlockedError{IP: ip, RetryAfter: g.cfg.BlockDuration}
}

// cachedBlock returns the block expiry for ip if a live entry exists.
// Expired entries are removed lazily here; the sweeper handles the
// rest.
func (g *Guard) cachedBlock(ip string) (time.Time, bool) {
	g.mu.RLock()
	until, ok := g.blocked[ip]
	g.mu.RUnlock()

	if !ok {
		return time.Time{}, false
	}
	if g.now().After(until) {
		g.mu.Lock()
		// Re-check under the write lock; Check may have re-blocked.
		if cur, still := g.blocked[ip]; still && g.now().After(cur) {
			delete(g.blocked, ip)
		}
		g.mu.Unlock()
		return time.Time{}, false
	}

	return until, true
}

// Rehydrate rebuilds the in-memory blocklist from the persistent
// store, scanning the block prefix and reading each entry's remaining
// TTL. Called once at process start.
func (g *Guard) Rehydrate(ctx context.Context) error {
	var cursor uint64
	pattern := g.cfg.Prefix + ":*"
	winPrefix := g.cfg.Prefix + ":win:"

	for {
		keys, next, err := g.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		for _, key := range keys {
			if len(key) >= len(winPrefix) && key[:len(winPrefix)] == winPrefix {
				continue // trip-detector counters, not block entries
			}
			ttl, err := g.redis.PTTL(ctx, key).Result()
			if err != nil || ttl <= 0 {
				continue
			}
			ip := key[len(g.cfg.Prefix)+1:]

			g.mu.Lock()
			g.blocked[ip] = g.now().Add(ttl)
			g.mu.Unlock()
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// StartSweeper launches the background goroutine that purges expired
// in-memory entries on a fixed interval. The persistent store
// self-expires via its TTLs and needs no sweeping.
func (g *Guard) StartSweeper() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ticker := time.NewTicker(g.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				g.sweep()
			case <-g.sweepStop:
				return
			}
		}
	}()
}

func (g *Guard) sweep() {
	now := g.now()

	g.mu.Lock()
	for ip, until := range g.blocked {
		if now.After(until) {
			delete(g.blocked, ip)
		}
	}
	g.mu.Unlock()
}

// BlockedCount returns the number of live in-memory block entries.
func (g *Guard) BlockedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.blocked)
}

// Close stops the sweeper, if started, and waits for it to exit.
func (g *Guard) Close() {
	g.sweepOnce.Do(func() {
		close(g.sweepStop)
	})
	g.wg.Wait()
}
