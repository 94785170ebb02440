package middleware

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimiter returns a per-IP limiter allowing rps requests per second.
// Requests under a path in exempt are never limited.
func RateLimiter(rps float64, logger *slog.Logger, exempt ...string) echo.MiddlewareFunc {
	logger = logger.With("component", "rate_limiter")
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return underAny(c.Request().URL.Path, exempt)
		},
		Store: echomw.NewRateLimiterMemoryStore(rate.Limit(rps)),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]any{
				"error": map[string]string{"message": "could not identify client"},
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logger.Debug("request rate limited", "remote_ip", identifier, "path", c.Request().URL.Path)
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{"message": "too many requests", "retryable": true},
			})
		},
	})
}
