// Package auth turns a presented bearer token into a Principal. The gate
// never returns an error: every failure yields a Result without a
// principal and a Reason saying why, and only route guards decide
// whether an anonymous caller may proceed.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/event-gate/internal/audit"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/token"
)

// Reason explains a Result.
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonAnonymous        Reason = "anonymous"
	ReasonMalformed        Reason = "malformed"
	ReasonExpiredSignature Reason = "expired_signature"
	ReasonRevoked          Reason = "revoked"
	ReasonUnknownSubject   Reason = "unknown_subject"
	// ReasonUnavailable: the revocation store or user directory could
	// not be consulted, so the token is not trusted.
	ReasonUnavailable Reason = "unavailable"
)

// Result is the outcome of Authenticate. Principal is set only when
// Reason is ReasonOK.
type Result struct {
	Principal *model.Principal
	Reason    Reason
}

// Authenticated reports whether a principal was established.
func (r Result) Authenticated() bool { return r.Principal != nil }

// Verifier checks a raw token's signature, expiry and claims.
type Verifier interface {
	Verify(raw string) (token.Claims, error)
}

// RevocationChecker answers whether a token id is blacklisted.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// UserDirectory resolves user ids. Lookup returns model.ErrUserNotFound
// for unknown ids.
type UserDirectory interface {
	Lookup(ctx context.Context, userID uint64) (model.User, error)
}

// Gate is the authentication gate.
type Gate struct {
	tokens  Verifier
	revoked RevocationChecker
	users   UserDirectory
	auditor audit.Auditor
	logger  *logger.Logger
	now     func() time.Time
}

// NewGate composes the gate from its collaborators.
func NewGate(tokens Verifier, revoked RevocationChecker, users UserDirectory, auditor audit.Auditor, logger *logger.Logger) *Gate {
	if auditor == nil {
		auditor = audit.Discard{}
	}
	return &Gate{tokens: tokens, revoked: revoked, users: users, auditor: auditor, logger: logger, now: time.Now}
}

// WithClock replaces the audit time source and returns g.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Authenticate validates raw (the token without the "Bearer " prefix).
// The checks short-circuit in order: signature and expiry, revocation,
// then the user directory. Every rejection except an absent token is
// audited with the client address.
func (g *Gate) Authenticate(ctx context.Context, raw, clientAddr string) Result {
	if raw == "" {
		return Result{Reason: ReasonAnonymous}
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		reason := ReasonMalformed
		if errors.Is(err, token.ErrExpired) {
			reason = ReasonExpiredSignature
		}
		return g.reject(ctx, reason, "", clientAddr, err.Error())
	}

	id := token.Identifier(claims, raw)
	revoked, err := g.revoked.IsRevoked(ctx, id)
	if err != nil {
		g.logger.Error("revocation lookup failed", "subject", claims.Subject, "error", err)
		return g.reject(ctx, ReasonUnavailable, claims.Subject, clientAddr, "revocation store unavailable")
	}
	if revoked {
		return g.reject(ctx, ReasonRevoked, claims.Subject, clientAddr, "token revoked")
	}

	u, err := g.users.Lookup(ctx, claims.UserID)
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		return g.reject(ctx, ReasonUnknownSubject, claims.Subject, clientAddr, "user not found")
	case err != nil:
		g.logger.Error("user lookup failed", "subject", claims.Subject, "error", err)
		return g.reject(ctx, ReasonUnavailable, claims.Subject, clientAddr, "user directory unavailable")
	case !u.IsActive:
		return g.reject(ctx, ReasonUnknownSubject, claims.Subject, clientAddr, "user inactive")
	case u.Email != claims.Subject || u.Role != claims.Role:
		return g.reject(ctx, ReasonUnknownSubject, claims.Subject, clientAddr, "claims do not match user")
	}

	p := model.PrincipalFromUser(u)
	p.TokenID = id
	p.ExpiresAt = claims.Expiry()
	return Result{Principal: &p, Reason: ReasonOK}
}

func (g *Gate) reject(ctx context.Context, reason Reason, subject, clientAddr, detail string) Result {
	err := g.auditor.Record(ctx, model.AuditEntry{
		Category:   model.AuditAuth,
		Outcome:    string(reason),
		Subject:    subject,
		ClientAddr: clientAddr,
		Detail:     detail,
		At:         g.now().UTC(),
	})
	if err != nil {
		g.logger.Error("auth audit failed", "reason", reason, "error", err)
	}
	return Result{Reason: reason}
}
