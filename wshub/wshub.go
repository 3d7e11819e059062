// Package wshub broadcasts console events to connected websocket clients
// so open dashboards update without polling. Clients are write-only from
// the server's perspective; anything they send is drained and ignored.
// A client whose write fails is dropped — the browser reconnects.
package wshub

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// defaultWriteTimeout bounds a single frame write. A client that cannot
// take a frame within this window is treated as gone.
const defaultWriteTimeout = 10 * time.Second

// Event is the wire envelope every broadcast uses.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans events out to all connected clients. Safe for concurrent use.
type Hub struct {
	mu           sync.Mutex
	conns        map[*websocket.Conn]struct{}
	writeTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithWriteTimeout overrides how long one frame write may stall before
// the client is dropped.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) { h.writeTimeout = d }
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		conns:        make(map[*websocket.Conn]struct{}),
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handler returns the websocket endpoint. The connection is registered,
// greeted, and then held open until the client goes away.
func (h *Hub) Handler() websocket.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		h.add(ws)
		defer h.remove(ws)

		ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := websocket.JSON.Send(ws, Event{Type: "connected"}); err != nil {
			return
		}

		// Drain inbound frames; returning closes the connection.
		var discard []byte
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	})
}

// Broadcast sends an event to every connected client. Clients whose
// write fails or times out are dropped.
func (h *Hub) Broadcast(eventType string, data any) {
	ev := Event{Type: eventType, Data: data}

	// Snapshot first; writes happen outside the lock so one stalled
	// client cannot block Count, add, remove, or other broadcasts.
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for ws := range h.conns {
		conns = append(conns, ws)
	}
	h.mu.Unlock()

	for _, ws := range conns {
		ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := websocket.JSON.Send(ws, ev); err != nil {
			h.logger.Debug("wshub: dropping dead client", "error", err)
			h.remove(ws)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) add(ws *websocket.Conn) {
	h.mu.Lock()
	h.conns[ws] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("websocket connected", "total", n)
}

func (h *Hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[ws]
	if ok {
		ws.Close()
		delete(h.conns, ws)
	}
	n := len(h.conns)
	h.mu.Unlock()
	// Both Broadcast and the handler's defer may race to remove the
	// same connection; only the one that found it logs.
	if ok {
		h.logger.Info("websocket disconnected", "total", n)
	}
}
