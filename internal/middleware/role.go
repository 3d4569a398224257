package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/auth"
)

// RequireAuth rejects requests without a principal with 401. The body
// names the reason the token was not accepted.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := Principal(c); !ok {
				return unauthorized(c)
			}
			return next(c)
		}
	}
}

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles. Anonymous callers
// get 401, authenticated callers with another role get 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Principal(c)
			if !ok {
				return unauthorized(c)
			}
			if !p.HasRole(roles...) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

func unauthorized(c echo.Context) error {
	reason := authReason(c)
	if reason == auth.ReasonUnavailable {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "authentication unavailable"})
	}
	if reason == auth.ReasonAnonymous {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer`)
	} else {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	}
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "reason": string(reason)})
}
