package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/certdesk/internal/client"
	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// SetupRoutes configures routes for the API feature. Paths are shared with
// the HTTP client.
func SetupRoutes(router chi.Router, store core.Store, bus *refresh.Bus, logger *slog.Logger) error {
	handlers := NewHandlers(store, bus, logger)

	router.Post(client.QueryPath, handlers.Query)
	router.Post(client.ExportPath, handlers.Export)
	router.Post(client.RefreshPath, handlers.Refresh)

	return nil
}
