package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler, stream *EventsHandler, session *SessionHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	e.GET("/console/events", stream.Stream)
	e.GET("/console/session", session.Get)
	e.PUT("/console/session", session.Put)
	e.DELETE("/console/session", session.Delete)

	e.Any("/api/v2/*", proxy.Handle)
	e.Match([]string{"COPY"}, "/api/v2/*", proxy.Handle)
}
