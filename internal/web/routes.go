package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-id/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	identitiesHandler := handlers.NewIdentitiesHandler(s.store)
	identifyHandler := handlers.NewIdentifyHandler(s.store)
	statsHandler := handlers.NewStatsHandler(s.store)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		r.Post("/identities", identitiesHandler.Create)
		r.Get("/identities", identitiesHandler.List)
		r.Get("/identities/{id}", identitiesHandler.Get)

		r.Post("/identify", identifyHandler.Identify)

		r.Get("/stats", statsHandler.Get)
	})
}
