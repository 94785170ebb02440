// Package middleware provides Echo middleware for logging, metrics, rate
// limiting and security.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// HeaderCorrelationID carries the pipeline correlation id on gateway replies.
const HeaderCorrelationID = "X-Correlation-Id"

// RequestLogger returns an Echo middleware that logs each request with slog.
// 5xx replies log at error and 4xx at warn. Requests under a quiet path log
// at debug regardless of status.
func RequestLogger(logger *slog.Logger, quiet ...string) echo.MiddlewareFunc {
	logger = logger.With("component", "http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			level := slog.LevelInfo
			switch {
			case underAny(req.URL.Path, quiet):
				level = slog.LevelDebug
			case res.Status >= 500:
				level = slog.LevelError
			case res.Status >= 400:
				level = slog.LevelWarn
			}

			logger.Log(context.Background(), level, "request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"correlation_id", res.Header().Get(HeaderCorrelationID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}

// underAny reports whether path equals or sits below one of prefixes.
func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
