// Package server wires the HTTP handlers into a chi router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter builds the application router: health checks plus the WebSocket
// endpoint served by the given hub.
func NewRouter(hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Get("/", HealthHandler)
	r.Get("/healthz", HealthHandler)
	r.Get("/ws", hub.ServeWS)
	return r
}
