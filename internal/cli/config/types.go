// Package config provides configuration management for the certdesk CLI.
package config

import "time"

// Default values applied before the config file, environment and flags.
const (
	DefaultDriver         = "sqlite"
	DefaultDSN            = "certdesk.db"
	DefaultPort           = 8765
	DefaultPageSize       = 5
	DefaultSearchDebounce = 500 * time.Millisecond
	DefaultExportDest     = "exports"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultOutput         = "auto"
)

// ConfigFileNames are looked up in the working directory when --config is not given.
var ConfigFileNames = []string{"certdesk.yaml", "certdesk.yml"}

// DatabaseConfig selects the certificate store.
type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// UIConfig holds configuration for the web UI server.
type UIConfig struct {
	Port           int           `koanf:"port"`
	PageSize       int           `koanf:"page_size"`
	SearchDebounce time.Duration `koanf:"search_debounce"`
	// DebounceFetch gates the search fetch on the quiet period too.
	DebounceFetch bool   `koanf:"debounce_fetch"`
	SessionSecret string `koanf:"session_secret"`
	WatchDir      string `koanf:"watch_dir"`
	Dev           bool   `koanf:"dev"`
}

// ServerConfig points CLI commands at a running certdesk instead of the local store.
type ServerConfig struct {
	URL string `koanf:"url"`
}

// ExportConfig holds the export destination, a directory or a bucket URL.
type ExportConfig struct {
	Dest string `koanf:"dest"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config holds all CLI configuration options.
type Config struct {
	Database     DatabaseConfig `koanf:"database"`
	UI           UIConfig       `koanf:"ui"`
	Server       ServerConfig   `koanf:"server"`
	Export       ExportConfig   `koanf:"export"`
	Log          LogConfig      `koanf:"log"`
	Verbose      bool           `koanf:"verbose"`
	OutputFormat string         `koanf:"output"`
}

// Remote reports whether commands should go through the HTTP API.
func (c *Config) Remote() bool {
	return c.Server.URL != ""
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: DefaultDriver, DSN: DefaultDSN},
		UI: UIConfig{
			Port:           DefaultPort,
			PageSize:       DefaultPageSize,
			SearchDebounce: DefaultSearchDebounce,
		},
		Export:       ExportConfig{Dest: DefaultExportDest},
		Log:          LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		OutputFormat: DefaultOutput,
	}
}
