// Package wshub broadcasts pipeline snapshots to websocket clients
// (the UI rendering collaborator). The hub is a secondary
// presentation sink; a slow client drops messages rather than ever
// stalling the frame tick.
package wshub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/e7canasta/wayfinder/internal/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The hub serves a local assistive UI; origin policy is the
	// embedder's concern.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans snapshots out to connected websocket clients.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a hub; call Run in its own goroutine.
func New() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 16),
		done:      make(chan struct{}),
	}
}

// Run pumps broadcast messages to all clients until Close.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					slog.Debug("websocket write failed, dropping client", "error", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish implements core.PresentationSink. A full broadcast buffer
// drops the snapshot; the next tick supersedes it anyway.
func (h *Hub) Publish(s core.Snapshot) {
	payload, err := json.Marshal(s)
	if err != nil {
		slog.Error("snapshot marshal failed", "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	slog.Info("websocket client connected", "total", total)

	// Drain (and discard) client reads so pings and closes are
	// processed; unregister on error.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close shuts the hub down. Idempotent.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
