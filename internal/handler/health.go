package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"console-gateway/internal/config"
	"console-gateway/internal/events"
	"console-gateway/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	service *service.ConsoleService
	hub     *events.Hub
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, svc *service.ConsoleService, hub *events.Hub) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, service: svc, hub: hub}
}

// StageInfo describes one registered pipeline stage.
type StageInfo struct {
	ID       string `json:"id"`
	Phase    string `json:"phase"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	Status          string      `json:"status"`
	Version         string      `json:"version"`
	BackendURL      string      `json:"backend_url"`
	AllowedVerbs    []string    `json:"allowed_verbs"`
	LoadingInFlight int         `json:"loading_in_flight"`
	Authenticated   bool        `json:"authenticated"`
	EventClients    int         `json:"event_clients"`
	Stages          []StageInfo `json:"stages"`
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns gateway status information.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := StatusResponse{
		Status:       "ok",
		Version:      string(h.version),
		BackendURL:   h.cfg.Backend.BaseURL,
		AllowedVerbs: h.cfg.Gateway.AllowedMask().Decode(),
	}
	if h.service != nil {
		resp.LoadingInFlight = h.service.Tracker().InFlight()
		resp.Authenticated = h.service.HasSession(c.Request().Context())
		for _, d := range h.service.Pipeline().Stages() {
			resp.Stages = append(resp.Stages, StageInfo{
				ID:       d.ID,
				Phase:    d.Phase.String(),
				Priority: d.Priority,
				Enabled:  d.Enabled,
			})
		}
	}
	if h.hub != nil {
		resp.EventClients = h.hub.Clients()
	}
	return c.JSON(http.StatusOK, resp)
}
