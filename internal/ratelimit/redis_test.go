package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Increment(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewRedisStore(rdb)

	for i := int64(1); i <= 3; i++ {
		n, err := s.Increment(ctx, "rl:k", 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	assert.True(t, mr.TTL("rl:k") > 0)

	mr.FastForward(31 * time.Second)
	n, err := s.Increment(ctx, "rl:k", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_WithLimiter(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := &clock{t: windowStart.Add(5 * time.Second)}
	l := NewLimiter(NewRules(Rule{Max: 2, Window: time.Minute}, nil), NewRedisStore(rdb), "rl").WithClock(c.Now)

	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, "GET", "/x", "ip:a")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Check(ctx, "GET", "/x", "ip:a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}
