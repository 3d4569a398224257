package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/repository"
	"github.com/iliyamo/event-gate/internal/revocation"
	"github.com/iliyamo/event-gate/internal/token"
	"github.com/iliyamo/event-gate/internal/utils"
)

// UserStore is the subset of repository.UserRepo the auth handler uses.
type UserStore interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// RefreshStore is the subset of repository.TokenRepo the auth handler uses.
type RefreshStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Users       UserStore
	Tokens      RefreshStore
	Codec       *token.Codec
	Revocations *revocation.Registry
	RefreshTTL  time.Duration
	BcryptCost  int
	Logger      *logger.Logger
	now         func() time.Time
}

func NewAuthHandler(users UserStore, tokens RefreshStore, codec *token.Codec, revocations *revocation.Registry, refreshTTL time.Duration, bcryptCost int, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		Users:       users,
		Tokens:      tokens,
		Codec:       codec,
		Revocations: revocations,
		RefreshTTL:  refreshTTL,
		BcryptCost:  bcryptCost,
		Logger:      log,
		now:         time.Now,
	}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // CUSTOMER | OWNER
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type logoutReq struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}
type passwordResetReq struct {
	Email string `json:"email"`
}
type revokeReq struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Register: create user and return tokens immediately. Only CUSTOMER and
// OWNER accounts can be self-registered.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role != model.RoleOwner && role != model.RoleCustomer {
		role = model.RoleCustomer
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, role, h.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		h.Logger.Error("create user failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	resp, err := h.issuePair(ctx, model.User{ID: uid, Email: req.Email, Role: role})
	if err != nil {
		h.Logger.Error("issue tokens failed", "user_id", uid, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	resp, err := h.issuePair(ctx, u)
	if err != nil {
		h.Logger.Error("issue tokens failed", "user_id", u.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh: validate by hash, revoke old, issue new. Of two concurrent
// refreshes with the same token only the one that revokes it wins.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	won, err := h.Tokens.RevokeByHash(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke refresh failed"})
	}
	if !won {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	resp, err := h.issuePair(ctx, u)
	if err != nil {
		h.Logger.Error("issue tokens failed", "user_id", u.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

// PasswordReset accepts a reset request. The response never reveals
// whether the email is registered; delivering the reset link is handled
// elsewhere.
func (h *AuthHandler) PasswordReset(c echo.Context) error {
	var req passwordResetReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	h.Logger.Info("password reset requested", "client_addr", c.RealIP())
	return c.JSON(http.StatusAccepted, echo.Map{"status": "accepted"})
}

// Logout revokes the presented access token and either the given
// refresh token or, with "all", every refresh token of the user.
func (h *AuthHandler) Logout(c echo.Context) error {
	p, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req logoutReq
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Revocations.Revoke(ctx, p.TokenID, p.Subject, p.ExpiresAt, model.RevokeLogout); err != nil {
		h.Logger.Error("logout revoke failed", "subject", p.Subject, "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "logout failed"})
	}

	switch raw := strings.TrimSpace(req.RefreshToken); {
	case req.All:
		if err := h.Tokens.RevokeAllForUser(ctx, p.UserID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	case raw != "":
		if _, err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw)); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated principal.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":     p.UserID,
		"email":       p.Subject,
		"role":        p.Role,
		"authorities": p.Authorities,
		"expires_at":  p.ExpiresAt,
	})
}

// AdminRevoke revokes an arbitrary access token, given either the raw
// token or its id, subject and expiry.
func (h *AuthHandler) AdminRevoke(c echo.Context) error {
	admin, _ := middleware.Principal(c)
	var req revokeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	reason := req.Reason
	if reason != model.RevokeSecurity {
		reason = model.RevokeAdmin
	}

	id, subject, expiry := req.TokenID, req.Subject, req.ExpiresAt
	if raw := strings.TrimSpace(req.Token); raw != "" {
		claims, err := h.Codec.Verify(raw)
		switch {
		case errors.Is(err, token.ErrExpired):
			return c.JSON(http.StatusOK, echo.Map{"revoked": false, "reason": "token already expired"})
		case err != nil:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid token"})
		}
		id, subject, expiry = token.Identifier(claims, raw), claims.Subject, claims.Expiry()
	}
	if id == "" || expiry.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token or token_id/expires_at required"})
	}
	// no access token outlives one TTL from now, so neither may its entry
	if latest := h.now().Add(h.Codec.TTL()); expiry.After(latest) {
		expiry = latest
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Revocations.Revoke(ctx, id, subject, expiry, reason); err != nil {
		h.Logger.Error("admin revoke failed", "admin", admin.Subject, "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "revocation failed"})
	}
	h.Logger.Info("token revoked by admin", "admin", admin.Subject, "subject", subject, "reason", reason)
	return c.JSON(http.StatusOK, echo.Map{"revoked": expiry.After(h.now()), "token_id": id})
}

func (h *AuthHandler) issuePair(ctx context.Context, u model.User) (authResp, error) {
	access, err := h.Codec.Issue(u.Email, u.ID, u.Role)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.now(), h.RefreshTTL)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.ExpiresAt},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}
