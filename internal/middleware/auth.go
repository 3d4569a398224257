package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/auth"
)

// Authenticate runs the authentication gate for every request and stores
// the principal (or the reason there is none) in the echo context. It
// never rejects a request itself; RequireAuth and RequireRole do.
func Authenticate(gate *auth.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := BearerToken(c)
			res := gate.Authenticate(c.Request().Context(), raw, c.RealIP())
			c.Set(authReasonKey, res.Reason)
			if res.Authenticated() {
				SetPrincipal(c, res.Principal)
			}
			return next(c)
		}
	}
}
