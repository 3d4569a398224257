package model

import "time"

// RevokedToken is a blacklist entry for an access token revoked before
// its natural expiry. ExpiresAt is copied from the token itself: once it
// passes the token is rejected on expiry alone and the entry can go.
type RevokedToken struct {
	TokenID   string    // revoked_tokens.token_id (jti or sha256 of the raw token)
	Subject   string    // revoked_tokens.subject
	ExpiresAt time.Time // revoked_tokens.expires_at
	RevokedAt time.Time // revoked_tokens.revoked_at
	Reason    string    // revoked_tokens.reason: logout, admin, security
}

// Revocation reasons.
const (
	RevokeLogout   = "logout"
	RevokeAdmin    = "admin"
	RevokeSecurity = "security"
)
