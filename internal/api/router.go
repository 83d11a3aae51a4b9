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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires a valid JWT; the ticket then carries the
			// authentication into the WebSocket upgrade.
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/status", s.handleStatus)
			r.Post("/refresh", s.handleRefresh)

			r.Route("/charging", func(r chi.Router) {
				r.Post("/start", s.handleStartCharging)
				r.Post("/stop", s.handleStopCharging)
			})

			r.Put("/max-current", s.handleSetMaxCurrent)
			r.Post("/restart", s.handleRestart)

			r.Route("/rfid", func(r chi.Router) {
				r.Get("/", s.handleListTags)
				r.Post("/", s.handleAddTag)
				r.Delete("/", s.handleDeleteTag)
				r.Post("/scan", s.handleScanTag)
			})

			r.Get("/transactions", s.handleTransactions)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
