// Package httpapi exposes the chat hub over HTTP: a WebSocket endpoint
// speaking the same envelope protocol as the TCP listener, plus health
// and metrics probes.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"chatrelay/internal/config"
	"chatrelay/internal/middleware"
	"chatrelay/internal/socket"
)

func NewRouter(hub *socket.Hub, cfg config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(logger))

	r.Get("/ws", socket.WSHandler(hub, cfg))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", socket.MetricsHandler(hub.Metrics()))

	return r
}
