package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os/exec"
	"runtime"

	"github.com/leapstack-labs/certdesk/internal/logging"
	"github.com/leapstack-labs/certdesk/internal/ui"
	"github.com/spf13/cobra"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Open bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the certdesk web UI and API",
		Long: `Start a web server providing the certificate desk.

The server provides:
- Dashboard with status counts and the activity feed
- Certificate table with search, filter, sort, status tabs and CSV export
- JSON API used by remote CLI commands (--server)
- Optional import of certificate files dropped into a watched directory`,
		Example: `  # Start on the default port
  certdesk serve

  # Start on a custom port and import certificates from ./incoming
  certdesk serve --port 3000 --watch ./incoming

  # Start and open the browser
  certdesk serve --open`,
		Aliases: []string{"ui"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Open, "open", false, "Open the UI in a browser")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx, cleanup, err := NewStoreCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	secret := cfg.UI.SessionSecret
	if secret == "" {
		// Sessions only hold view preferences; losing them on restart is fine.
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		cmdCtx.Logger.Warn("ui.session_secret not set, using a random secret for this run")
	}

	server := ui.NewServer(ui.Config{
		Store:          cmdCtx.Store,
		Port:           cfg.UI.Port,
		SessionSecret:  secret,
		Logger:         logging.Component(cmdCtx.Logger, "ui"),
		WatchDir:       cfg.UI.WatchDir,
		SearchDebounce: cfg.UI.SearchDebounce,
		DebounceFetch:  cfg.UI.DebounceFetch,
		Dev:            cfg.UI.Dev,
	})

	ln, err := server.Listen()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://localhost:%d", ln.Addr().(*net.TCPAddr).Port)
	if opts.Open {
		go openBrowser(url)
	}

	r := cmdCtx.Renderer
	r.Success("Serving certdesk on " + url)
	if cfg.UI.WatchDir != "" {
		r.Muted("Importing certificates from " + cfg.UI.WatchDir)
	}
	r.Muted("Press Ctrl+C to stop")

	return server.Serve(cmd.Context(), ln)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
