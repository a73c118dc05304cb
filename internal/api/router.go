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
		r.Get("/health", s.handleHealth)

		// Discovery
		r.Post("/discover", s.handleDiscover)

		// Device cache
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Delete("/", s.handleClearDevices)
			r.Post("/cleanup", s.handleCleanupDevices)

			r.Route("/{ip}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/control-info", s.handleControlInfo)
				r.Post("/generate-profile", s.handleGenerateProfile)

				// Media control
				r.Post("/volume", s.handleSetVolume)
				r.Post("/seek", s.handleSeek)
				r.Post("/media", s.handleSetMedia)
				r.Post("/{action}", s.handleDeviceAction)
			})
		})

		// Mass operations
		r.Post("/control/batch", s.handleBatchControl)

		// Profiles
		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleListProfiles)
			r.Post("/reload", s.handleReloadProfiles)
		})

		// WebSocket events
		r.Get("/ws", s.handleWebSocket)
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
