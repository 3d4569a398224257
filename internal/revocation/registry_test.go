package revocation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/testutil"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRegistry(store Store) *Registry {
	return NewRegistry(store, testutil.NoopLogger()).WithClock(func() time.Time { return base })
}

func TestRegistry_RevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newRegistry(store)

	require.NoError(t, r.Revoke(ctx, "jti-1", "ana@example.com", base.Add(time.Hour), model.RevokeLogout))
	require.NoError(t, r.Revoke(ctx, "jti-1", "ana@example.com", base.Add(2*time.Hour), model.RevokeAdmin))

	assert.Equal(t, 1, store.Len())
	ok, err := r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// first insert wins: the entry still expires after one hour
	n, err := r.Sweep(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRegistry_RevokeExpiredTokenIsNoop(t *testing.T) {
	store := NewMemoryStore()
	r := newRegistry(store)

	require.NoError(t, r.Revoke(context.Background(), "jti-old", "ana@example.com", base.Add(-time.Second), model.RevokeLogout))
	assert.Equal(t, 0, store.Len())
}

func TestRegistry_UnknownTokenNotRevoked(t *testing.T) {
	r := newRegistry(NewMemoryStore())
	ok, err := r.IsRevoked(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_SweepBoundary(t *testing.T) {
	ctx := context.Background()
	offsets := []time.Duration{time.Minute, 30 * time.Minute, time.Hour, 2 * time.Hour, 24 * time.Hour}

	for _, sweepAt := range []time.Duration{0, time.Minute, 45 * time.Minute, time.Hour, 3 * time.Hour, 48 * time.Hour} {
		t.Run(sweepAt.String(), func(t *testing.T) {
			r := newRegistry(NewMemoryStore())
			for i, off := range offsets {
				require.NoError(t, r.Revoke(ctx, fmt.Sprintf("jti-%d", i), "s", base.Add(off), model.RevokeLogout))
			}

			now := base.Add(sweepAt)
			_, err := r.Sweep(ctx, now)
			require.NoError(t, err)

			for i, off := range offsets {
				ok, err := r.IsRevoked(ctx, fmt.Sprintf("jti-%d", i))
				require.NoError(t, err)
				exp := base.Add(off)
				if exp.Before(now) {
					assert.False(t, ok, "entry expiring %s must be swept at %s", exp, now)
				} else {
					assert.True(t, ok, "entry expiring %s must survive sweep at %s", exp, now)
				}
			}
		})
	}
}

type failingStore struct{ err error }

func (f failingStore) Put(context.Context, model.RevokedToken) error { return f.err }
func (f failingStore) Exists(context.Context, string) (bool, error) { return false, f.err }
func (f failingStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

func TestRegistry_StoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	r := newRegistry(failingStore{err: boom})

	_, err := r.IsRevoked(ctx, "jti")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, r.Revoke(ctx, "jti", "s", base.Add(time.Hour), model.RevokeLogout), boom)
	_, err = r.Sweep(ctx, base)
	require.ErrorIs(t, err, boom)
}
