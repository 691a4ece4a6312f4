package commands

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/certdesk/internal/cli/output"
	"github.com/leapstack-labs/certdesk/internal/client"
	"github.com/leapstack-labs/certdesk/internal/importer"
	"github.com/leapstack-labs/certdesk/internal/logging"
	"github.com/spf13/cobra"
)

// importOutput is the JSON shape of an import summary.
type importOutput struct {
	Dir     string `json:"dir"`
	Files   int    `json:"files"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Failed  int    `json:"failed"`
}

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Import issued certificates from PEM files",
		Long: `Import every .pem and .crt file under a directory. Certificates are matched
by SHA-256 fingerprint: known ones are refreshed, new ones are created as
approved. Files that cannot be parsed are reported and skipped.

Imports write to the local store. When a server shares that store, pass
--server so its open views reload.`,
		Example: `  # Import a directory of issued certificates
  certdesk import ./issued

  # Import and tell a running server to reload
  certdesk import ./issued --server http://localhost:8765`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0])
		},
	}

	return cmd
}

func runImport(cmd *cobra.Command, dir string) error {
	if fi, err := os.Stat(dir); err != nil {
		return fmt.Errorf("import directory: %w", err)
	} else if !fi.IsDir() {
		return fmt.Errorf("import directory: %s is not a directory", dir)
	}

	cmdCtx, cleanup, err := NewStoreCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	imp := importer.New(cmdCtx.Store, nil, logging.Component(cmdCtx.Logger, "importer"))
	sum, err := imp.ImportDir(cmd.Context(), dir)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if sum.Changed() && cmdCtx.Cfg.Remote() {
		if err := client.New(cmdCtx.Cfg.Server.URL).Refresh(cmd.Context()); err != nil {
			r.Warning("Imported, but the server could not be notified: " + err.Error())
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(importOutput{Dir: dir, Files: sum.Files, Created: sum.Created, Updated: sum.Updated, Failed: sum.Failed})
	}

	r.Header(2, "Import "+dir)
	msg := fmt.Sprintf("%d files: %d created, %d updated", sum.Files, sum.Created, sum.Updated)
	if sum.Failed > 0 {
		r.Warning(fmt.Sprintf("%s, %d failed (see log)", msg, sum.Failed))
		return nil
	}
	r.Success(msg)
	return nil
}
