package ratelimit

import (
	"context"
)

// Request carries the identifiers a composite rule set keys on.
// Subject is a derived identifier (see the keycodec package); IP is
// the raw client address.
type Request struct {
	Subject string
	IP      string
}

// KeyFunc selects the window key for a request.
type KeyFunc func(Request) string

// BySubject keys a window on the derived subject identifier.
func BySubject(r Request) string { return r.Subject }

// ByIP keys a window on the client IP.
func ByIP(r Request) string { return r.IP }

// Rule binds one window to a key selector.
type Rule struct {
	Window *Window
	Key    KeyFunc
}

// Composite applies several windows to one action. All must pass for
// the action to proceed; a single trip blocks the whole chain.
type Composite struct {
	rules []Rule
}

// NewComposite builds a composite over the given rules. Rules with a
// nil window or key selector are skipped; an empty rule set always
// allows.
func NewComposite(rules ...Rule) *Composite {
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Window != nil && r.Key != nil {
			kept = append(kept, r)
		}
	}
	return &Composite{rules: kept}
}

// Apply runs the two-phase check: peek every window first, and only if
// none is exhausted consume from all of them. The peek phase keeps a
// request that is already doomed from burning points on sibling
// windows. When several windows are exhausted the longest retry-after
// wins, as the most conservative answer for the caller.
//
// The two phases are not one atomic unit: under heavy concurrency a
// request can pass every peek and still trip a sibling on consume.
// That race is accepted; the consume itself is atomic per window, so
// budgets are never exceeded.
func (c *Composite) Apply(ctx context.Context, req Request) (Result, error) {
	worst := Result{Allowed: true}

	for _, r := range c.rules {
		// A rule whose identifier is absent from the request is skipped
		// rather than collapsing every caller onto one shared key.
		if r.Key(req) == "" {
			continue
		}
		res, err := r.Window.Peek(ctx, r.Key(req))
		if err != nil {
			return Result{}, err
		}
		if res.Remaining == 0 {
			worst.Allowed = false
			if res.RetryAfter > worst.RetryAfter {
				worst.RetryAfter = res.RetryAfter
			}
		}
	}
	if !worst.Allowed {
		return worst, nil
	}

	final := Result{Allowed: true, Remaining: -1}
	for _, r := range c.rules {
		if r.Key(req) == "" {
			continue
		}
		res, err := r.Window.Consume(ctx, r.Key(req))
		if err != nil {
			return Result{}, err
		}
		if !res.Allowed {
			// Raced with a concurrent request between peek and consume.
			return res, nil
		}
		if final.Remaining < 0 || res.Remaining < final.Remaining {
			final.Remaining = res.Remaining
		}
	}
	if final.Remaining < 0 {
		final.Remaining = 0
	}

	return final, nil
}
