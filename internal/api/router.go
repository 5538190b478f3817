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

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Fleet membership and lifecycle
			r.Route("/clients", func(r chi.Router) {
				r.Get("/", s.handleListClients)
				r.Post("/refresh", s.handleRefreshClients)
				r.Post("/{moduleID}/{instanceID}/restart", s.handleRestartClient)
			})

			// Fan-out reads across the fleet
			r.Get("/channels", s.handleGetChannels)
			r.Get("/channel-groups", s.handleGetChannelGroups)
			r.Get("/timers", s.handleGetTimers)
			r.Get("/recordings", s.handleGetRecordings)
			r.Delete("/recordings/trash", s.handleEmptyTrash)
			r.Get("/providers", s.handleGetProviders)
			r.Get("/backends", s.handleGetBackends)
			r.Get("/capabilities", s.handleCapabilities)

			// Fleet-wide settings and host power events
			r.Put("/epg/window", s.handleSetEPGWindow)
			r.Post("/system/{event}", s.handleSystemEvent)

			// WebSocket feed of connection state and notifications
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status and a fleet summary.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         s.version,
		"created_clients": s.fleet.CreatedClientCount(),
		"ignored_clients": s.fleet.HasIgnoredClients(),
	})
}
