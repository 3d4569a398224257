package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-gate/internal/model"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps one key per revoked token: prefix:<tokenID> holding
// the expiry in Unix milliseconds. Keys carry a TTL up to the token's
// expiry, so Redis drops most of them on its own; DeleteExpired removes
// whatever is left behind.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore returns a store using keys under prefix.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "revoked"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(tokenID string) string { return s.prefix + ":" + tokenID }

// Put sets the key only if absent (SET NX).
func (s *RedisStore) Put(ctx context.Context, entry model.RevokedToken) error {
	ttl := entry.ExpiresAt.Sub(entry.RevokedAt)
	if ttl <= 0 {
		return nil
	}
	val := strconv.FormatInt(entry.ExpiresAt.UnixMilli(), 10)
	if err := s.rdb.SetNX(ctx, s.key(entry.TokenID), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

// Exists checks for the key.
func (s *RedisStore) Exists(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired scans the prefix and deletes keys whose stored expiry is
// before now. Each DEL is atomic for its key.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var (
		cursor  uint64
		deleted int64
		nowMs   = now.UnixMilli()
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+":*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range keys {
			v, err := s.rdb.Get(ctx, k).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return deleted, fmt.Errorf("redis get: %w", err)
			}
			exp, err := strconv.ParseInt(v, 10, 64)
			if err == nil && exp >= nowMs {
				continue
			}
			n, err := s.rdb.Del(ctx, k).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
