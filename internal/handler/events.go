package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"console-gateway/internal/events"
)

// keepAliveInterval is how often an idle stream gets a comment line so
// proxies do not close it.
const keepAliveInterval = 15 * time.Second

// EventsHandler streams loading, notification and navigation events.
type EventsHandler struct {
	hub    *events.Hub
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(hub *events.Hub, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, logger: logger.With("component", "events_handler")}
}

// Stream serves text/event-stream until the client goes away or the hub
// closes.
func (h *EventsHandler) Stream(c echo.Context) error {
	client := h.hub.Subscribe()
	defer h.hub.Unsubscribe(client)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	// initial comment so EventSource opens
	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		return nil
	}
	w.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case ev := <-client.Ch():
			if err := writeEvent(w, ev); err != nil {
				h.logger.Debug("event stream write failed", "err", err)
				return nil
			}
			w.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return nil
			}
			w.Flush()
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return nil
		}
	}
}

func writeEvent(w *echo.Response, ev events.Event) error {
	frame := make([]byte, 0, len(ev.Data)+len(ev.Event)+16)
	if ev.Event != "" {
		frame = append(frame, "event: "...)
		frame = append(frame, ev.Event...)
		frame = append(frame, '\n')
	}
	frame = append(frame, "data: "...)
	frame = append(frame, ev.Data...)
	frame = append(frame, "\n\n"...)
	_, err := w.Write(frame)
	return err
}
