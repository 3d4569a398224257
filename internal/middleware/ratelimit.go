package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/auth"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/ratelimit"
)

// unmatchedRoute is the one bucket shared by requests that match no
// registered route, so probing random paths cannot mint new counters.
const unmatchedRoute = "<unmatched>"

// RateLimit counts every request against the rule matching its method
// and echo route pattern. It runs before authentication so rejected
// floods never reach the revocation store or user directory. Counter
// store failures let the request through.
func RateLimit(l *ratelimit.Limiter, tokens auth.Verifier, log *logger.Logger) echo.MiddlewareFunc {
	if l == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	// registered route patterns, read on the first request once all
	// routes exist
	var (
		once  sync.Once
		known map[string]struct{}
	)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			once.Do(func() { known = routePatterns(c.Echo()) })
			route := c.Path()
			if _, ok := known[route]; !ok {
				route = unmatchedRoute
			}
			identity := rateIdentity(c, tokens)

			d, err := l.Check(c.Request().Context(), c.Request().Method, route, identity)
			if err != nil {
				log.Warn("rate limiter unavailable, allowing request", "route", route, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter(l.Now()).Seconds()))
				h.Set("Retry-After", strconv.Itoa(secs))
				log.Info("rate limit exceeded", "rule", d.Rule.Name, "identity", identity)
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func routePatterns(e *echo.Echo) map[string]struct{} {
	known := make(map[string]struct{})
	for _, r := range e.Routes() {
		known[r.Path] = struct{}{}
	}
	return known
}
