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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// User routes (JWT from the external accounts service)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication; the ticket carries the
			// caller identity to the WebSocket handshake.
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/session", func(r chi.Router) {
				r.Post("/prepare-insert", s.handlePrepareInsert)
				r.Post("/end", s.handleEndSession)
				r.Get("/status", s.handleSessionStatus)
			})

			r.Get("/detections/history", s.handleDetectionHistory)
			r.Get("/points/balance", s.handlePointsBalance)
			r.Get("/transactions", s.handleListTransactions)

			r.Get("/machines/{id}/status", s.handleMachineStatus)
		})

		// Kiosk routes (shared machine token)
		r.Group(func(r chi.Router) {
			r.Use(s.kioskAuthMiddleware)

			r.Post("/kiosk/classify", s.handleKioskClassify)
			r.Get("/kiosk/machines/{id}/session", s.handleKioskSession)

			// Machine event channel (session start/end notifications)
			r.Get("/ws/machines/{id}", s.handleMachineWebSocket)
		})

		// User WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}

	if s.mqtt != nil {
		if err := s.mqtt.HealthCheck(r.Context()); err != nil {
			components["mqtt"] = err.Error()
		} else {
			components["mqtt"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"active_sessions": s.sessions.ActiveCount(),
		"ws_clients":      s.Hub().ClientCount(),
		"components":      components,
	})
}
