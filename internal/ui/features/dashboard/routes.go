package dashboard

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// SetupRoutes configures routes for the dashboard feature.
func SetupRoutes(router chi.Router, store core.Store, bus *refresh.Bus, logger *slog.Logger, isDev bool) error {
	handlers := NewHandlers(store, bus, logger, isDev)

	router.Get("/", handlers.DashboardPage)
	router.Get("/updates", handlers.DashboardUpdates)

	return nil
}
