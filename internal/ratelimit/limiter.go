// Package ratelimit implements fixed-window request counting keyed by
// route rule and caller identity. A window starts at a multiple of the
// rule's window length; across a boundary a caller may get up to twice
// the limit, which is accepted in exchange for one counter per window.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// CounterStore atomically increments a counter and returns the new
// value. The first increment of a key starts its ttl; concurrent callers
// sharing a key must observe strictly increasing values.
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Decision is the outcome of a Check, carrying what client-facing
// X-RateLimit headers need.
type Decision struct {
	Allowed   bool
	Rule      Rule
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the window rolls over.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if r := d.ResetAt.Sub(now); r > 0 {
		return r
	}
	return 0
}

// Limiter checks requests against Rules using a CounterStore.
type Limiter struct {
	rules  Rules
	store  CounterStore
	prefix string
	now    func() time.Time
}

// NewLimiter returns a limiter. prefix namespaces the counter keys.
func NewLimiter(rules Rules, store CounterStore, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{rules: rules, store: store, prefix: prefix, now: time.Now}
}

// WithClock replaces the limiter's time source and returns l.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Rules returns the configured rule set.
func (l *Limiter) Rules() Rules { return l.rules }

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time { return l.now() }

// Check counts one request by identity against the rule matching
// method and route. When the store fails, the returned decision allows
// the request and the error is returned alongside it.
func (l *Limiter) Check(ctx context.Context, method, route, identity string) (Decision, error) {
	rule := l.rules.Match(method, route)
	now := l.now()

	winSec := int64(rule.Window / time.Second)
	if winSec < 1 {
		winSec = 1
	}
	index := now.Unix() / winSec
	resetAt := time.Unix((index+1)*winSec, 0).UTC()

	d := Decision{Allowed: true, Rule: rule, Limit: rule.Max, Remaining: rule.Max, ResetAt: resetAt}

	key := fmt.Sprintf("%s:%s:%s:%d", l.prefix, rule.Name, identity, index)
	// keep the counter a second past the boundary to absorb clock skew
	ttl := resetAt.Sub(now) + time.Second
	count, err := l.store.Increment(ctx, key, ttl)
	if err != nil {
		return d, fmt.Errorf("rate limit counter: %w", err)
	}

	if count > int64(rule.Max) {
		d.Allowed = false
		d.Remaining = 0
		return d, nil
	}
	d.Remaining = rule.Max - int(count)
	return d, nil
}
