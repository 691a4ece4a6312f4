// Package ui provides the certdesk web UI and JSON API server.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/certdesk/internal/artifact"
	"github.com/leapstack-labs/certdesk/internal/importer"
	"github.com/leapstack-labs/certdesk/internal/logging"
	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/internal/ui/features/certificates"
	"github.com/leapstack-labs/certdesk/internal/ui/router"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

const (
	sessionMaxAge   = 30 * 24 * time.Hour
	shutdownTimeout = 5 * time.Second
)

// Server hosts the certificate desk: pages, SSE streams and the JSON API,
// all sharing one store and one refresh bus.
type Server struct {
	store    core.Store
	bus      *refresh.Bus
	sessions *sessions.CookieStore
	port     int
	watchDir string
	dev      bool
	tables   certificates.Options
	logger   *slog.Logger
}

// Config holds configuration for the UI server.
type Config struct {
	Store         core.Store
	Bus           *refresh.Bus
	Port          int
	SessionSecret string
	Logger        *slog.Logger
	// WatchDir, when set, is watched for certificate files to import.
	WatchDir       string
	SearchDebounce time.Duration
	DebounceFetch  bool
	Dev            bool
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	cookies := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookies.MaxAge(int(sessionMaxAge / time.Second))
	cookies.Options.Path = "/"
	cookies.Options.HttpOnly = true
	cookies.Options.SameSite = http.SameSiteLaxMode

	bus := cfg.Bus
	if bus == nil {
		bus = refresh.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		store:    cfg.Store,
		bus:      bus,
		sessions: cookies,
		port:     cfg.Port,
		watchDir: cfg.WatchDir,
		dev:      cfg.Dev,
		tables: certificates.Options{
			QuietPeriod:   cfg.SearchDebounce,
			DebounceFetch: cfg.DebounceFetch,
			Logger:        logging.Component(logger, "table"),
		},
		logger: logger,
	}
}

// Listen binds the configured port. Port 0 picks a free one.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	return ln, nil
}

// Handler builds the routed handler. Downloads live in memory and are
// discarded when ctx ends.
func (s *Server) Handler(ctx context.Context) (http.Handler, error) {
	downloads, err := artifact.Open(ctx, "mem://")
	if err != nil {
		return nil, fmt.Errorf("failed to open download store: %w", err)
	}
	context.AfterFunc(ctx, func() { _ = downloads.Close() })

	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		accessLog(logging.Component(s.logger, "http")),
		middleware.Recoverer,
		middleware.Compress(5),
	)

	deps := router.Deps{
		Store:        s.store,
		Bus:          s.bus,
		SessionStore: s.sessions,
		Downloads:    downloads,
		Certificates: s.tables,
		Logger:       s.logger,
	}
	if err := router.SetupRoutes(r, deps, s.dev); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve runs the server on ln until ctx is cancelled, then drains open
// requests. The import watcher, if configured, runs alongside.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	handler, err := s.Handler(egctx)
	if err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		BaseContext:       func(net.Listener) context.Context { return egctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("serving", slog.String("addr", ln.Addr().String()))

	if s.watchDir != "" {
		eg.Go(func() error {
			s.watch(egctx)
			return nil
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Debug("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watch imports what is already in the watch directory, then follows it.
// Failures are logged; the server keeps running without imports.
func (s *Server) watch(ctx context.Context) {
	imp := importer.New(s.store, s.bus, logging.Component(s.logger, "importer"))
	if _, err := imp.ImportDir(ctx, s.watchDir); err != nil {
		s.logger.Error("initial import failed", slog.String("dir", s.watchDir), slog.Any("error", err))
	}
	if err := imp.Watch(ctx, s.watchDir); err != nil {
		s.logger.Error("import watcher stopped", slog.String("dir", s.watchDir), slog.Any("error", err))
	}
}

// Bus returns the server's refresh bus.
func (s *Server) Bus() *refresh.Bus {
	return s.bus
}

// accessLog logs one line per request. Long-lived SSE streams log when
// they close.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
