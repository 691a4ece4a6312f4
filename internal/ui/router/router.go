// Package router sets up HTTP routes for the UI server.
package router

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/certdesk/internal/artifact"
	"github.com/leapstack-labs/certdesk/internal/refresh"
	apiFeature "github.com/leapstack-labs/certdesk/internal/ui/features/api"
	certificatesFeature "github.com/leapstack-labs/certdesk/internal/ui/features/certificates"
	dashboardFeature "github.com/leapstack-labs/certdesk/internal/ui/features/dashboard"
	"github.com/leapstack-labs/certdesk/internal/ui/resources"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// Deps are the shared dependencies of all features.
type Deps struct {
	Store        core.Store
	Bus          *refresh.Bus
	SessionStore *sessions.CookieStore
	Downloads    *artifact.Sink
	Certificates certificatesFeature.Options
	Logger       *slog.Logger
}

// SetupRoutes configures all routes for the UI server.
func SetupRoutes(router chi.Router, deps Deps, isDev bool) error {
	// Hot reload endpoint for dev mode
	if isDev {
		setupReload(router)
	}

	// Static assets
	router.Handle(resources.URLPrefix+"*", resources.Handler())

	// Feature routes
	if err := dashboardFeature.SetupRoutes(router, deps.Store, deps.Bus, deps.Logger, isDev); err != nil {
		return err
	}

	certOpts := deps.Certificates
	certOpts.IsDev = isDev
	if certOpts.Logger == nil {
		certOpts.Logger = deps.Logger
	}
	if err := certificatesFeature.SetupRoutes(router, deps.Store, deps.SessionStore, deps.Bus, deps.Downloads, certOpts); err != nil {
		return err
	}

	if err := apiFeature.SetupRoutes(router, deps.Store, deps.Bus, deps.Logger); err != nil {
		return err
	}

	return nil
}

func setupReload(router chi.Router) {
	reloadChan := make(chan struct{}, 1)
	var hotReloadOnce sync.Once

	router.Get("/reload", func(w http.ResponseWriter, r *http.Request) {
		sse := datastar.NewSSE(w, r)
		reload := func() { _ = sse.ExecuteScript("window.location.reload()") }
		hotReloadOnce.Do(reload)
		select {
		case <-reloadChan:
			reload()
		case <-r.Context().Done():
		}
	})

	router.Get("/hotreload", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case reloadChan <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}
