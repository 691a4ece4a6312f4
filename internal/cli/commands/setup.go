package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/certdesk/internal/cli/config"
	"github.com/leapstack-labs/certdesk/internal/cli/output"
	"github.com/leapstack-labs/certdesk/internal/client"
	"github.com/leapstack-labs/certdesk/internal/logging"
	"github.com/leapstack-labs/certdesk/internal/state"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	// Store is nil when the command talks to a server.
	Store  *state.Store
	Remote *client.HTTP
}

// Fetcher returns the paginated read used by tables.
func (c *CommandContext) Fetcher() table.Fetcher {
	if c.Remote != nil {
		return c.Remote
	}
	return c.Store
}

// Exporter returns the full-dataset read used by exports.
func (c *CommandContext) Exporter() table.Exporter {
	if c.Remote != nil {
		return c.Remote
	}
	return c.Store
}

// Refresh asks a server to pulse its refresh bus. Local stores have no
// other viewers, so there is nothing to notify.
func (c *CommandContext) Refresh(ctx context.Context) error {
	if c.Remote != nil {
		return c.Remote.Refresh(ctx)
	}
	return nil
}

// NewCommandContext creates a CommandContext reading through the server
// when server.url is set and through the local store otherwise.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := config.FromContext(cmd.Context())
	if cfg.Remote() {
		cc := newCommandContext(cmd, cfg)
		cc.Remote = client.New(cfg.Server.URL)
		cc.Logger.Debug("using server", slog.String("url", cfg.Server.URL))
		return cc, func() {}, nil
	}
	return NewStoreCommandContext(cmd)
}

// NewStoreCommandContext creates a CommandContext that always opens the
// local store, for commands that write to it.
func NewStoreCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := config.FromContext(cmd.Context())
	cc := newCommandContext(cmd, cfg)

	store, err := openStore(cmd.Context(), cfg, cc.Logger)
	if err != nil {
		return nil, nil, err
	}
	cc.Store = store

	cleanup := func() {
		_ = store.Close()
	}
	return cc, cleanup, nil
}

func newCommandContext(cmd *cobra.Command, cfg *config.Config) *CommandContext {
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*state.Store, error) {
	dialect, err := state.LookupDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	// SQLite creates the file but not its directory.
	if dialect == state.SQLite && !strings.HasPrefix(cfg.Database.DSN, ":memory:") && !strings.HasPrefix(cfg.Database.DSN, "file:") {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	logger.Debug("opening store",
		slog.String("driver", dialect.Driver),
		slog.String("dsn", logging.MaskDSN(cfg.Database.DSN)))

	store, err := state.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logging.Component(logger, "state"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}
