package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/", s.handleRoot)

	// Device and console routes. The gateway checks credentials itself.
	r.Post("/uplink", s.handleUplink)
	r.Post("/api/update", s.handleUplink)
	r.Get("/downlink", s.handleDownlink)
	r.Get("/api/status", s.handleDownlink)
	r.Post("/command", s.handleCommand)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.readAuthMiddleware)

			r.Get("/metrics", s.handleMetrics)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
		})

		// WebSocket (auth via ticket or read token, validated in handler)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
