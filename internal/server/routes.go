// Package server wires HTTP handlers into a ServeMux for the FlashChat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: the chat page, the WebSocket endpoint, the health check, and the
// room statistics endpoint.
func SetupRoutes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.ChatPage)
	mux.HandleFunc("/ws", h.WebSocket)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/api/stats", h.Stats)
	return mux
}
