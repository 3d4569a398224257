// Package token signs and verifies the bearer access tokens that clients
// present in the Authorization header. Codec is stateless: everything it
// knows comes from the secret key and the token itself.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed covers anything that is not a well-formed, correctly
	// signed token carrying every required claim.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired is returned for a correctly signed token past its exp.
	ErrExpired = errors.New("token expired")
)

// Claims is the typed claim set of an access token. Every field except
// ID is required and checked when the token is verified, so callers
// never have to cast or nil-check claims later.
type Claims struct {
	jwt.RegisteredClaims
	UserID uint64 `json:"uid"`
	Role   string `json:"role"`
}

// Issued is a freshly signed access token.
type Issued struct {
	Token     string    // the serialized JWT string
	ID        string    // jti
	IssuedAt  time.Time // UTC issue time
	ExpiresAt time.Time // UTC expiration time
}

// Codec issues and verifies HS256 access tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces time.Now as the codec's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a codec signing with secret; issued tokens live for ttl.
func NewCodec(secret string, ttl time.Duration, opts ...Option) *Codec {
	c := &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue builds and signs a token for a user. The subject is the user's
// email; uid and role travel as private claims and jti is a fresh uuid
// so the token can later be revoked individually.
func (c *Codec) Issue(subject string, userID uint64, role string) (Issued, error) {
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.ttl)
	jti := uuid.NewString()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
		Role:   role,
	})
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return Issued{Token: signed, ID: jti, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify checks signature, expiry and required claims. It returns an
// error wrapping ErrExpired for expired tokens and ErrMalformed for
// everything else.
func (c *Codec) Verify(raw string) (Claims, error) {
	claims := Claims{}
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case claims.Subject == "":
		return Claims{}, fmt.Errorf("%w: missing sub", ErrMalformed)
	case claims.UserID == 0:
		return Claims{}, fmt.Errorf("%w: missing uid", ErrMalformed)
	case claims.Role == "":
		return Claims{}, fmt.Errorf("%w: missing role", ErrMalformed)
	case claims.IssuedAt == nil:
		return Claims{}, fmt.Errorf("%w: missing iat", ErrMalformed)
	}
	return claims, nil
}

// Identifier returns the stable revocation key for a token: its jti when
// present, otherwise the SHA-256 hex digest of the raw value.
func Identifier(claims Claims, raw string) string {
	if claims.ID != "" {
		return claims.ID
	}
	return Hash(raw)
}

// Hash returns the SHA-256 hex digest of a raw token value.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Expiry returns the exp claim as a UTC time.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}
