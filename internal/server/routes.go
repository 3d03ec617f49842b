package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Client routes
	r.Route("/client", func(r chi.Router) {
		r.Get("/", s.listClients)

		r.Route("/{clientID}", func(r chi.Router) {
			r.Get("/", s.getClient)
			r.Get("/resolved", s.getResolved)

			r.Route("/scope/{scope}", func(r chi.Router) {
				r.Get("/", s.getScope)
				r.Put("/", s.putScope)
				r.Get("/backup", s.listBackups)
			})
		})
	})

	// Backup routes
	r.Route("/backup", func(r chi.Router) {
		r.Post("/{backupID}/restore", s.restoreBackup)
		r.Post("/prune", s.pruneBackups)
	})

	// Bulk operations
	r.Post("/bulk", s.runBulk)

	// Event streaming (SSE)
	r.Get("/event", s.streamEvents)

	// Status
	r.Get("/status", s.getStatus)
}
