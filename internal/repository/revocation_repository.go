package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-gate/internal/model"
)

// RevocationRepo is the MySQL revocation store.
type RevocationRepo struct{ db *sql.DB }

func NewRevocationRepo(db *sql.DB) *RevocationRepo { return &RevocationRepo{db: db} }

// Put inserts the entry; an existing entry for the same token wins.
func (r *RevocationRepo) Put(ctx context.Context, e model.RevokedToken) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO revoked_tokens (token_id, subject, expires_at, revoked_at, reason) VALUES (?,?,?,?,?)",
		e.TokenID, e.Subject, e.ExpiresAt.UTC(), e.RevokedAt.UTC(), e.Reason)
	return err
}

// Exists reports whether tokenID is blacklisted.
func (r *RevocationRepo) Exists(ctx context.Context, tokenID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM revoked_tokens WHERE token_id=? LIMIT 1", tokenID).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// DeleteExpired removes entries whose token expired before now.
func (r *RevocationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM revoked_tokens WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
