package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeLua increments a window counter and arms its expiry in one
// atomic step, so two concurrent requests can never both observe a
// pre-increment count under the limit.
//
// KEYS[1] = window key
// ARGV[1] = window duration in milliseconds
//
// Returns {count, remaining ttl in milliseconds}.
var consumeLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// Result is the outcome of a window check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Window is a fixed-window counter over a keyed resource: a point
// budget spent within a duration measured from the first consumption.
// Expiry is delegated entirely to the store's TTL; nothing here resets
// counters by hand.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewWindow creates a fixed-window limiter. Keys are namespaced as
// "<prefix>:<key>".
func NewWindow(redisClient redis.UniversalClient, prefix string, limit int, window time.Duration) *Window {
	return &Window{
		redis:  redisClient,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Limit returns the window's point budget.
func (w *Window) Limit() int { return w.limit }

// Duration returns the window length.
func (w *Window) Duration() time.Duration { return w.window }

func (w *Window) key(key string) string {
	return w.prefix + ":" + key
}

// Consume spends one point. The increment and the expiry arm run as a
// single script, so the returned count is exact under concurrency. A
// point is charged even when the result is a denial; Peek exists so
// callers can report an exhausted window without paying for it.
func (w *Window) Consume(ctx context.Context, key string) (Result, error) {
	vals, err := consumeLua.Run(ctx, w.redis, []string{w.key(key)}, w.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	count, ttlMs := vals[0], vals[1]
	return w.result(count, ttlMs), nil
}

// Peek reports the window state without consuming a point.
func (w *Window) Peek(ctx context.Context, key string) (Result, error) {
	pipe := w.redis.Pipeline()
	getCmd := pipe.Get(ctx, w.key(key))
	ttlCmd := pipe.PTTL(ctx, w.key(key))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count, err := getCmd.Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{Allowed: true, Remaining: w.limit}, nil
		}
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return w.result(count, ttlCmd.Val().Milliseconds()), nil
}

func (w *Window) result(count, ttlMs int64) Result {
	res := Result{
		Allowed:   count <= int64(w.limit),
		Remaining: w.limit - int(count),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	// RetryAfter is populated whenever the budget is spent, so a Peek
	// on an exhausted window can report how long the caller must wait.
	if res.Remaining == 0 && ttlMs > 0 {
		res.RetryAfter = time.Duration(ttlMs) * time.Millisecond
	}
	return res
}
