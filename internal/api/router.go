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

	if s.prometheus != nil && s.metricsPath != "" {
		r.Handle(s.metricsPath, s.prometheus)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Get("/{id}", s.handleGetEntity)
			r.Post("/{id}/command", s.handleEntityCommand)
		})

		r.Route("/registers", func(r chi.Router) {
			r.Get("/", s.handleListRegisters)
			r.Get("/{name}/history", s.handleRegisterHistory)
		})

		r.Get("/commands", s.handleListCommands)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/setup/validate", s.handleSetupValidate)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server and device health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	coord := s.entry.Coordinator()
	status := "ok"
	if !coord.LastUpdateSuccess() {
		status = "degraded"
	}

	body := map[string]any{
		"status":           status,
		"version":          s.version,
		"device_available": coord.LastUpdateSuccess(),
	}
	if last := coord.LastUpdate(); !last.IsZero() {
		body["last_update"] = last.UTC()
	}
	if s.mqtt != nil {
		body["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, body)
}
