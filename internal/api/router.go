package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/robolink-gateway/internal/auth"
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
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/presence", s.handlePresence)
		r.Get("/sessions", s.handleListSessions)
		r.With(s.requireScope(auth.ScopeRead)).Get("/audit", s.handleListAudit)

		r.Route("/robots", func(r chi.Router) {
			r.Get("/", s.handleListRobots)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/address", s.handleGetAddress)
				r.Get("/status", s.handleGetStatus)
				r.Get("/history", s.handleGetHistory)
				r.With(s.requireScope(auth.ScopeCommand)).Post("/command", s.handleSendCommand)
			})
		})

		// WebSocket (token validated in handler; browsers cannot set headers)
		r.Get("/ws", s.handleWebSocket)
	})

	r.Route("/robot", func(r chi.Router) {
		r.With(s.requireScope(auth.ScopeCommand)).Post("/manage", s.handleRobotManage)
		r.Post("/ip", s.handleRobotIP)
	})

	return r
}
