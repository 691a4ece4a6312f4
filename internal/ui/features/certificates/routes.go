package certificates

import (
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/certdesk/internal/artifact"
	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// SetupRoutes configures routes for the certificates feature.
func SetupRoutes(
	router chi.Router,
	store core.Store,
	sessionStore sessions.Store,
	bus *refresh.Bus,
	downloads *artifact.Sink,
	opts Options,
) error {
	handlers := NewHandlers(store, sessionStore, bus, downloads, opts)

	router.Route("/certificates", func(r chi.Router) {
		r.Get("/", handlers.CertificatesPage)
		r.Get("/updates", handlers.CertificatesUpdates)
		r.Post("/submit", handlers.Submit)
		r.Get("/downloads/{token}/{name}", handlers.Download)

		r.Route("/views/{view}", func(r chi.Router) {
			r.Post("/page", handlers.SetPage)
			r.Post("/size", handlers.SetPageSize)
			r.Post("/search", handlers.Search)
			r.Post("/sort", handlers.Sort)
			r.Post("/filter", handlers.Filter)
			r.Post("/tab", handlers.Tab)
			r.Post("/refresh", handlers.Refresh)
			r.Post("/export", handlers.Export)
			r.Post("/rows/{id}/{action}", handlers.RowAction)
		})
	})

	return nil
}
