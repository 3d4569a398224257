package model

import "time"

// Role names carried in the `role` claim of access tokens and stored in
// the users.role column.
const (
	RoleCustomer = "CUSTOMER" // buys and holds tickets
	RoleOwner    = "OWNER"    // organizes events, may operate gates
	RoleStaff    = "STAFF"    // gate operator
	RoleAdmin    = "ADMIN"    // may revoke arbitrary tokens
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleCustomer, RoleOwner, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. Handlers define separate response types with JSON tags.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address, also the token subject.
//  PasswordHash – bcrypt hashed password.
//  Role         – name of the role (CUSTOMER, OWNER, STAFF or ADMIN).
//  IsActive     – whether the account may authenticate.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Principal is the authenticated caller attached to a request once the
// authentication gate accepts its bearer token. Authorities are derived
// from the role ("ROLE_<name>") and are what route guards check.
type Principal struct {
	UserID      uint64
	Subject     string
	Role        string
	Authorities []string
	TokenID     string    // jti of the presented access token
	ExpiresAt   time.Time // expiry of the presented access token
}

// HasRole reports whether the principal carries any of the given roles.
func (p Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// PrincipalFromUser builds a principal for a directory record.
func PrincipalFromUser(u User) Principal {
	return Principal{
		UserID:      u.ID,
		Subject:     u.Email,
		Role:        u.Role,
		Authorities: []string{"ROLE_" + u.Role},
	}
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA‑256 hash.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA‑256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
