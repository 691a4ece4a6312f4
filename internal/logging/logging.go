// Package logging builds the slog loggers used across certdesk.
package logging

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// Config holds logging configuration.
type Config struct {
	Format string // "json" | "text"
	Level  string // "debug" | "info" | "warn" | "error"
}

// New returns a logger writing to w.
func New(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a string level to slog.Level. Unknown levels map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a logger tagged with a component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	return l.With(slog.String("component", name))
}

var (
	reDSNPass  = regexp.MustCompile(`(://)([^:/@]+):([^@]+)(@)`)
	rePassword = regexp.MustCompile(`(?i)(password=)([^\s;&]+)`)
)

// MaskDSN hides credentials in a database connection string before it is logged.
func MaskDSN(dsn string) string {
	out := reDSNPass.ReplaceAllString(dsn, "$1$2:***$4")
	return rePassword.ReplaceAllString(out, "$1***")
}
