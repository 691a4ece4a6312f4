package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("driver", "", "")
	fs.String("dsn", "", "")
	fs.Int("port", 0, "")
	fs.Int("page-size", 0, "")
	fs.Duration("search-debounce", 0, "")
	fs.String("server", "", "")
	fs.StringP("output", "o", "", "")
	fs.BoolP("verbose", "v", false, "")
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Empty(t, GetConfigFileUsed())
	assert.False(t, cfg.Remote())
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: from-file.db
ui:
  port: 9000
  page_size: 25
  search_debounce: 250ms
  session_secret: ${CERTDESK_TEST_SECRET}
output: json
`)

	tests := []struct {
		name  string
		env   map[string]string
		flags []string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "file overrides defaults",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "from-file.db", cfg.Database.DSN)
				assert.Equal(t, 9000, cfg.UI.Port)
				assert.Equal(t, 25, cfg.UI.PageSize)
				assert.Equal(t, 250*time.Millisecond, cfg.UI.SearchDebounce)
				assert.Equal(t, "json", cfg.OutputFormat)
				assert.Equal(t, DefaultExportDest, cfg.Export.Dest)
			},
		},
		{
			name: "env overrides file",
			env: map[string]string{
				"CERTDESK_UI_PAGE_SIZE":      "50",
				"CERTDESK_DATABASE_DSN":      "from-env.db",
				"CERTDESK_EXPORT_DEST":       "mem://",
				"CERTDESK_UI_WATCH_DIR":      "/var/certs",
				"CERTDESK_TEST_SECRET":       "s3cret",
				"CERTDESK_LOG_LEVEL":         "debug",
				"CERTDESK_UI_DEBOUNCE_FETCH": "true",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 50, cfg.UI.PageSize)
				assert.Equal(t, "from-env.db", cfg.Database.DSN)
				assert.Equal(t, "mem://", cfg.Export.Dest)
				assert.Equal(t, "/var/certs", cfg.UI.WatchDir)
				assert.Equal(t, "s3cret", cfg.UI.SessionSecret)
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.True(t, cfg.UI.DebounceFetch)
			},
		},
		{
			name:  "flags override env",
			env:   map[string]string{"CERTDESK_UI_PAGE_SIZE": "50"},
			flags: []string{"--page-size", "10", "--search-debounce", "1s", "-o", "markdown", "--server", "http://localhost:8765"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10, cfg.UI.PageSize)
				assert.Equal(t, time.Second, cfg.UI.SearchDebounce)
				assert.Equal(t, "markdown", cfg.OutputFormat)
				assert.True(t, cfg.Remote())
			},
		},
		{
			name:  "unchanged flags do not override",
			flags: []string{"-v"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.UI.Port)
				assert.True(t, cfg.Verbose)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			for key, val := range tt.env {
				t.Setenv(key, val)
			}
			fs := testFlags()
			require.NoError(t, fs.Parse(tt.flags))

			cfg, err := LoadConfig(path, fs)
			require.NoError(t, err)
			assert.Equal(t, path, GetConfigFileUsed())
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_FindsFileInWorkingDir(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "certdesk.yml"), []byte("ui:\n  port: 7000\n"), 0o600))
	t.Chdir(dir)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.UI.Port)
	assert.Equal(t, "certdesk.yml", GetConfigFileUsed())
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{name: "unknown driver", content: "database:\n  driver: mysql\n", errSubstr: "unsupported database driver"},
		{name: "bad page size", content: "ui:\n  page_size: 7\n", errSubstr: "ui.page_size"},
		{name: "bad port", content: "ui:\n  port: 70000\n", errSubstr: "ui.port"},
		{name: "bad duration", content: "ui:\n  search_debounce: soon\n", errSubstr: "decode"},
		{name: "bad server url", content: "server:\n  url: localhost:8765\n", errSubstr: "server.url"},
		{name: "bad output", content: "output: xml\n", errSubstr: "output must be one of"},
		{name: "malformed yaml", content: "ui: [\n", errSubstr: "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CERTDESK_UI_PAGE_SIZE":       "ui.page_size",
		"CERTDESK_DATABASE_DRIVER":    "database.driver",
		"CERTDESK_SERVER_URL":         "server.url",
		"CERTDESK_OUTPUT":             "output",
		"CERTDESK_VERBOSE":            "verbose",
		"CERTDESK_UI_SEARCH_DEBOUNCE": "ui.search_debounce",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	l := slog.New(slog.DiscardHandler)
	assert.Same(t, l, GetLogger(WithLogger(context.Background(), l)))
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, Default(), FromContext(context.Background()))

	cfg := Default()
	cfg.UI.Port = 9999
	assert.Same(t, cfg, FromContext(WithConfig(context.Background(), cfg)))
}
