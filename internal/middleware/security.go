package middleware

import (
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are headers that should not be forwarded by proxies.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that adds security headers,
// strips hop-by-hop headers from requests, and drops any of strip the
// browser sent. The gateway alone attaches backend credentials, so the
// credential header names belong in strip.
func SecurityHeaders(strip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			for _, name := range hopByHopHeaders {
				h.Del(name)
			}
			for _, name := range strip {
				h.Del(name)
			}

			// Set before the handler runs; streamed replies flush headers early.
			res := c.Response().Header()
			res.Set("X-Content-Type-Options", "nosniff")
			res.Set("X-Frame-Options", "DENY")
			res.Set("Referrer-Policy", "no-referrer")

			return next(c)
		}
	}
}
