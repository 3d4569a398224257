package testutil

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/repository"
	"github.com/iliyamo/event-gate/internal/utils"
)

// Users is an in-memory users table for handler and router tests.
type Users struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
}

// NewUsers returns an empty table.
func NewUsers() *Users {
	return &Users{byID: map[uint64]model.User{}}
}

// Create mirrors repository.UserRepo.Create.
func (u *Users) Create(_ context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.byID {
		if existing.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	u.nextID++
	u.byID[u.nextID] = model.User{ID: u.nextID, Email: email, PasswordHash: hash, Role: role, IsActive: true}
	return u.nextID, nil
}

// Add inserts a ready-made user and returns it with its id.
func (u *Users) Add(email, password, role string, cost int) model.User {
	id, err := u.Create(context.Background(), email, password, role, cost)
	if err != nil {
		panic(err)
	}
	return u.byID[id]
}

// SetActive toggles the account.
func (u *Users) SetActive(id uint64, active bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	usr := u.byID[id]
	usr.IsActive = active
	u.byID[id] = usr
}

// GetByEmail mirrors repository.UserRepo.GetByEmail.
func (u *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, usr := range u.byID {
		if usr.Email == email {
			return usr, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

// GetByID mirrors repository.UserRepo.GetByID.
func (u *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	usr, ok := u.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return usr, nil
}

// Lookup implements auth.UserDirectory.
func (u *Users) Lookup(ctx context.Context, id uint64) (model.User, error) {
	return u.GetByID(ctx, id)
}

type refreshRow struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

// RefreshTokens is an in-memory refresh_tokens table.
type RefreshTokens struct {
	mu   sync.Mutex
	rows map[string]*refreshRow
}

// NewRefreshTokens returns an empty table.
func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{rows: map[string]*refreshRow{}}
}

// StoreRefresh mirrors repository.TokenRepo.StoreRefresh.
func (r *RefreshTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[hash] = &refreshRow{userID: userID, exp: exp}
	return nil
}

// ValidateRefresh mirrors repository.TokenRepo.ValidateRefresh.
func (r *RefreshTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[hash]
	if !ok || row.revoked || time.Now().After(row.exp) {
		return 0, sql.ErrNoRows
	}
	return row.userID, nil
}

// RevokeByHash mirrors repository.TokenRepo.RevokeByHash.
func (r *RefreshTokens) RevokeByHash(_ context.Context, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[hash]
	if !ok || row.revoked {
		return false, nil
	}
	row.revoked = true
	return true, nil
}

// RevokeAllForUser mirrors repository.TokenRepo.RevokeAllForUser.
func (r *RefreshTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.userID == userID {
			row.revoked = true
		}
	}
	return nil
}

// Active counts unrevoked tokens of a user.
func (r *RefreshTokens) Active(userID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.userID == userID && !row.revoked {
			n++
		}
	}
	return n
}
