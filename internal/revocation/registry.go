// Package revocation keeps the blacklist of access tokens revoked before
// their natural expiry. Entries carry the token's own expiry and are
// swept once it passes, so the blacklist only ever holds revocations
// made within one token lifetime.
package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
)

// Store is the persistence boundary of the registry. Implementations must
// make Put idempotent (a second Put for the same TokenID changes nothing)
// and delete rows atomically in DeleteExpired so concurrent Exists calls
// never observe a half-deleted entry.
type Store interface {
	Put(ctx context.Context, entry model.RevokedToken) error
	Exists(ctx context.Context, tokenID string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Registry is the revocation registry used by the authentication gate
// and by logout/admin revocation.
type Registry struct {
	store  Store
	now    func() time.Time
	logger *logger.Logger
}

// NewRegistry wraps a store.
func NewRegistry(store Store, logger *logger.Logger) *Registry {
	return &Registry{store: store, now: time.Now, logger: logger}
}

// WithClock replaces the registry's time source and returns r.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Revoke blacklists tokenID until expiry. Revoking a token that has
// already expired is a no-op.
func (r *Registry) Revoke(ctx context.Context, tokenID, subject string, expiry time.Time, reason string) error {
	now := r.now().UTC()
	if !expiry.After(now) {
		return nil
	}
	entry := model.RevokedToken{
		TokenID:   tokenID,
		Subject:   subject,
		ExpiresAt: expiry.UTC(),
		RevokedAt: now,
		Reason:    reason,
	}
	if err := r.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	r.logger.Info("token revoked", "subject", subject, "reason", reason, "expires_at", entry.ExpiresAt)
	return nil
}

// IsRevoked reports whether tokenID is blacklisted. A store error is
// returned as-is; callers must treat it as "cannot tell" and fail closed.
func (r *Registry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return r.store.Exists(ctx, tokenID)
}

// Sweep deletes every entry whose expiry is before now.
func (r *Registry) Sweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.store.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep revoked tokens: %w", err)
	}
	if n > 0 {
		r.logger.Info("revocation sweep", "deleted", n)
	}
	return n, nil
}

// SweepNow runs Sweep at the registry's current time.
func (r *Registry) SweepNow(ctx context.Context) (int64, error) {
	return r.Sweep(ctx, r.now())
}
