package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes:
// the health check at "/" and the WebSocket endpoint at "/ws".
func SetupRoutes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.HealthHandler)
	mux.HandleFunc("/ws", h.WebSocketHandler)
	return mux
}
