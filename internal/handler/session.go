package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"console-gateway/internal/service"
)

// SessionHandler stores and clears the backend session token.
type SessionHandler struct {
	service *service.ConsoleService
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc *service.ConsoleService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{service: svc, logger: logger.With("component", "session_handler")}
}

type sessionRequest struct {
	SessionToken string `json:"session_token"`
}

// Get reports whether a session token is stored.
func (h *SessionHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{
		"authenticated": h.service.HasSession(c.Request().Context()),
	})
}

// Put stores the session token from the request body.
func (h *SessionHandler) Put(c echo.Context) error {
	var body sessionRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: errorDetail{Message: "invalid session body"}})
	}
	if err := h.service.SetSessionToken(c.Request().Context(), body.SessionToken); err != nil {
		if errors.Is(err, service.ErrEmptyToken) {
			return c.JSON(http.StatusBadRequest, errorBody{Error: errorDetail{Message: err.Error()}})
		}
		h.logger.Error("storing session token", "err", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: errorDetail{Message: "could not store session token"}})
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete clears the stored session token.
func (h *SessionHandler) Delete(c echo.Context) error {
	if err := h.service.ClearSession(c.Request().Context()); err != nil {
		h.logger.Error("clearing session token", "err", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: errorDetail{Message: "could not clear session token"}})
	}
	return c.NoContent(http.StatusNoContent)
}
