// Package events fans gateway state changes out to console browsers over
// server-sent events.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event names published by the gateway.
const (
	EventLoading      = "loading"
	EventNotification = "notification"
	EventNavigate     = "navigate"
)

// clientBuffer is the number of undelivered events a client may lag behind
// before new events are dropped for it.
const clientBuffer = 32

// Event is one encoded SSE frame.
type Event struct {
	Event string
	Data  []byte
}

// Client is a single subscriber.
type Client struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Ch delivers published events.
func (c *Client) Ch() <-chan Event { return c.ch }

// Done is closed when the client is unsubscribed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub keeps the set of connected clients. Publish never blocks: a client
// whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "events_hub"),
	}
}

// Subscribe registers a new client.
func (h *Hub) Subscribe() *Client {
	c := &Client{
		ch:   make(chan Event, clientBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Unsubscribe removes c. It is safe to call more than once.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish encodes data as JSON and offers it to every client.
func (h *Hub) Publish(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encode event", "event", event, "err", err)
		return
	}
	ev := Event{Event: event, Data: raw}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.ch <- ev:
		default:
			h.logger.Debug("client lagging; event dropped", "event", event)
		}
	}
}

// Close unsubscribes every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
