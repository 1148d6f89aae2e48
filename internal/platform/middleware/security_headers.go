package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityConfig tunes SecurityHeaders.
type SecurityConfig struct {
	// HSTS adds Strict-Transport-Security; only set it when served over TLS.
	HSTS bool
}

// apiCSP forbids every fetch: the API only ever answers JSON.
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders hardens the JSON API. Appointment, profile and inbox
// responses carry personal data and are marked no-store; health probes may
// be cached briefly by load balancers.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderXContentTypeOptions, "nosniff")
			h.Set(echo.HeaderXFrameOptions, "DENY")
			h.Set(echo.HeaderContentSecurityPolicy, apiCSP)
			h.Set(echo.HeaderReferrerPolicy, "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			if cfg.HSTS {
				h.Set(echo.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains")
			}
			if strings.HasPrefix(c.Request().URL.Path, "/health") {
				h.Set(echo.HeaderCacheControl, "max-age=5")
			} else {
				h.Set(echo.HeaderCacheControl, "no-store")
				h.Add(echo.HeaderVary, echo.HeaderAuthorization)
			}
			return next(c)
		}
	}
}
