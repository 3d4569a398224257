package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// window-aligned start so that +59s stays inside the same 60s window
var windowStart = time.Unix(1_780_000_020, 0).UTC()

func newLimiter(t *testing.T, rules Rules) (*Limiter, *clock) {
	t.Helper()
	require.Zero(t, windowStart.Unix()%60)
	c := &clock{t: windowStart}
	store := NewMemoryStore().WithClock(c.Now)
	return NewLimiter(rules, store, "test").WithClock(c.Now), c
}

func TestLimiter_SixthRequestDeniedNextWindowAllowed(t *testing.T) {
	ctx := context.Background()
	l, c := newLimiter(t, NewRules(Rule{Max: 5, Window: time.Minute}, nil))

	for i := 1; i <= 5; i++ {
		c.Set(windowStart.Add(time.Duration(i*10) * time.Second))
		d, err := l.Check(ctx, "GET", "/x", "ip:1.2.3.4")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5-i, d.Remaining)
		assert.Equal(t, windowStart.Add(time.Minute), d.ResetAt)
	}

	c.Set(windowStart.Add(59 * time.Second))
	d, err := l.Check(ctx, "GET", "/x", "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 5, d.Limit)
	assert.Equal(t, time.Second, d.RetryAfter(c.Now()))

	// still denied until the window rolls over
	d, err = l.Check(ctx, "GET", "/x", "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	c.Set(windowStart.Add(time.Minute))
	d, err = l.Check(ctx, "GET", "/x", "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, windowStart.Add(2*time.Minute), d.ResetAt)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	rules := NewRules(Rule{Max: 1, Window: time.Minute}, map[string]Rule{
		"POST /v1/auth/login": {Max: 1, Window: time.Minute},
	})
	l, _ := newLimiter(t, rules)

	d, _ := l.Check(ctx, "POST", "/v1/auth/login", "ip:a")
	assert.True(t, d.Allowed)
	d, _ = l.Check(ctx, "POST", "/v1/auth/login", "ip:a")
	assert.False(t, d.Allowed)

	// another identity, same rule
	d, _ = l.Check(ctx, "POST", "/v1/auth/login", "ip:b")
	assert.True(t, d.Allowed)
	// same identity, another rule
	d, _ = l.Check(ctx, "GET", "/v1/me", "ip:a")
	assert.True(t, d.Allowed)
}

func TestLimiter_ConcurrentCallersShareCount(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, NewRules(Rule{Max: 50, Window: time.Minute}, nil))

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, "GET", "/x", "user:7")
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), allowed.Load())
}

type brokenStore struct{}

func (brokenStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("down")
}

func TestLimiter_StoreErrorAllows(t *testing.T) {
	l := NewLimiter(NewRules(Rule{Max: 1, Window: time.Minute}, nil), brokenStore{}, "")
	d, err := l.Check(context.Background(), "GET", "/x", "ip:a")
	require.Error(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStore_PrunesExpiredBuckets(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: windowStart}
	s := NewMemoryStore().WithClock(c.Now)

	_, _ = s.Increment(ctx, "a", time.Minute)
	_, _ = s.Increment(ctx, "b", time.Minute)
	assert.Equal(t, 2, s.Len())

	c.Set(windowStart.Add(2 * time.Minute))
	n, err := s.Increment(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, s.Len())
}
