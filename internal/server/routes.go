package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes registers the v2 API surface (spec.md §6 "HTTP API").
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/v2/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Post("/prompt", s.promptSession)
			r.Post("/stop", s.stopSession)
			r.Post("/model", s.setModel)
			r.Get("/follow", s.followSession)
		})
	})

	r.Get("/v2/runners", s.listRunners)
	r.Get("/v2/environments", s.listEnvironments)
}
