package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handlers serves the HTTP surface of the chat server.
type Handlers struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandlers creates the handlers for hub, accepting WebSocket upgrades
// from the hub's configured origins.
func NewHandlers(hub *Hub) *Handlers {
	origins := newOriginPolicy(hub.config.AllowedOrigins)
	return &Handlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the connection and registers a new
// Client with the hub, which then starts its session and pumps.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr)
	if !h.hub.registerClient(client) {
		log.Printf("Rejecting connection from %s: server is shutting down", r.RemoteAddr)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

// Stats returns the counters reported by the health endpoint.
func (h *Handlers) Stats() HealthStats {
	rooms := h.hub.Registry().Stats()
	return HealthStats{
		Connections: h.hub.ClientCount(),
		Rooms:       rooms.Rooms,
		Members:     rooms.Members,
	}
}

// HealthHandler responds with a plain text status line and the live
// connection and room counters.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stats := h.Stats()
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "StreamChat server is running!\nconnections: %d\nrooms: %d\nmembers: %d\n",
		stats.Connections, stats.Rooms, stats.Members)
}
