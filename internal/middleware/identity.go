package middleware

// identity.go holds the request-scoped accessors shared by the
// middleware and the handlers.

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/auth"
	"github.com/iliyamo/event-gate/internal/model"
)

const (
	principalKey  = "principal"
	authReasonKey = "auth_reason"
)

// BearerToken returns the token from the Authorization header. A header
// in any other scheme is returned whole so that it fails verification
// rather than passing as anonymous.
func BearerToken(c echo.Context) string {
	h := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if h == "" {
		return ""
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

// Principal returns the authenticated caller, if any.
func Principal(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(principalKey).(*model.Principal)
	if !ok || p == nil {
		return model.Principal{}, false
	}
	return *p, true
}

// SetPrincipal attaches an authenticated caller to the request.
func SetPrincipal(c echo.Context, p *model.Principal) {
	c.Set(principalKey, p)
}

func authReason(c echo.Context) auth.Reason {
	r, ok := c.Get(authReasonKey).(auth.Reason)
	if !ok {
		return auth.ReasonAnonymous
	}
	return r
}

// IPExtractor decides where c.RealIP comes from. With no trusted proxies
// it is the socket peer, so forwarding headers sent by clients are
// ignored. Otherwise X-Forwarded-For is walked from the right and only
// hops inside the trusted ranges are skipped. Entries are CIDRs or bare
// addresses.
func IPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, p := range trustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q: not an address", p)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			p = fmt.Sprintf("%s/%d", p, bits)
		}
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// rateIdentity keys rate limiting by user when the bearer token carries
// a valid signature and by client address otherwise. Revocation is not
// consulted here; a revoked token still counts against its user.
func rateIdentity(c echo.Context, tokens auth.Verifier) string {
	if raw := BearerToken(c); raw != "" && tokens != nil {
		if claims, err := tokens.Verify(raw); err == nil {
			return "user:" + strconv.FormatUint(claims.UserID, 10)
		}
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
