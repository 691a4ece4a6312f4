// Package state persists certificate applications and their activity feed
// in a SQL database. SQLite (modernc.org/sqlite) and PostgreSQL (pgx) are
// supported through database/sql.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// Errors returned by store operations.
var (
	ErrNotFound          = errors.New("certificate not found")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrInvalidQuery      = errors.New("invalid query")
)

// Dialect captures the differences between supported databases.
type Dialect struct {
	Driver string
	Goose  string
	// Numbered placeholders ($1, $2, ...) instead of '?'.
	Numbered bool
}

// Supported dialects.
var (
	SQLite   = Dialect{Driver: "sqlite", Goose: "sqlite3"}
	Postgres = Dialect{Driver: "pgx", Goose: "postgres", Numbered: true}
)

// LookupDialect returns the dialect for a configured driver name.
func LookupDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

// Rebind rewrites '?' placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store implements core.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ core.Store = (*Store)(nil)

// Open connects to the database, verifies the connection and runs migrations.
// For SQLite, ":memory:" opens a private in-memory database.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d, err := LookupDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Driver, err)
	}
	if d == SQLite {
		// One connection keeps ":memory:" databases shared and serialises writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.Driver, err)
	}
	if d == SQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	s := New(db, d, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("store opened", slog.String("driver", d.Driver))
	return s, nil
}

// New wraps an existing connection. The schema is expected to be migrated.
func New(db *sql.DB, d Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, dialect: d, logger: logger}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Fetch serves a table page. It lets the store back a table controller directly.
func (s *Store) Fetch(ctx context.Context, q core.PageQuery) (core.Page, error) {
	return s.ListCertificates(ctx, q)
}

// Export serves an export read.
func (s *Store) Export(ctx context.Context, req core.ExportRequest) ([]core.Row, error) {
	return s.ExportCertificates(ctx, req)
}

func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

func generateID() string {
	return uuid.New().String()
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
