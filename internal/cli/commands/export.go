package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/certdesk/internal/artifact"
	"github.com/leapstack-labs/certdesk/internal/cli/output"
	"github.com/leapstack-labs/certdesk/internal/logging"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/pkg/core"
	"github.com/spf13/cobra"
)

// ExportOptions holds options for the export command.
type ExportOptions struct {
	Compress  bool
	Delimiter string
}

// exportResult is the JSON shape of a finished export.
type exportResult struct {
	Name string `json:"name"`
	Dest string `json:"dest"`
	Rows int    `json:"rows"`
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	q := &queryFlags{}
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every matching certificate to a CSV file",
		Long: `Export the full set of certificates matching the search, filter, sort and
status tab. Pagination does not apply.

The file is named export_<YYYY-MM-DD>.csv and written to export.dest, which may
be a local directory or a bucket URL (file://, mem://, s3://, gs://).`,
		Example: `  # Export approved certificates to ./exports
  certdesk export --status approved

  # Export a search to S3, zstd-compressed
  certdesk export -s acme --dest s3://certdesk-exports --compress`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, q, opts)
		},
	}
	q.bind(cmd, false)
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "Store the file zstd-compressed (.csv.zst)")
	cmd.Flags().StringVar(&opts.Delimiter, "delimiter", ",", "Field delimiter")

	return cmd
}

func runExport(cmd *cobra.Command, q *queryFlags, opts *ExportOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := q.state(cmdCtx.Cfg.UI.PageSize)
	if err != nil {
		return err
	}
	delim, err := parseDelimiter(opts.Delimiter)
	if err != nil {
		return err
	}

	pipeline := table.NewExportPipeline(cmdCtx.Exporter(),
		table.WithDelimiter(delim),
		table.WithExportLogger(logging.Component(cmdCtx.Logger, "export")))

	res, err := exportTo(cmd.Context(), pipeline, s.ExportRequest(), cmdCtx.Cfg.Export.Dest, opts.Compress)
	r := cmdCtx.Renderer
	switch {
	case errors.Is(err, table.ErrEmptyExport):
		r.Warning("No certificates match, nothing to export.")
		return nil
	case err != nil:
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(res)
	}
	r.Success(fmt.Sprintf("Exported %d rows to %s", res.Rows, joinDest(res.Dest, res.Name)))
	return nil
}

// exportTo runs one export and stores the artifact in dest.
func exportTo(ctx context.Context, p *table.ExportPipeline, req core.ExportRequest, dest string, compress bool) (exportResult, error) {
	a, err := p.Run(ctx, req)
	if err != nil {
		return exportResult{}, err
	}

	name := a.Name
	if compress {
		name += artifact.CompressedSuffix
	}
	if err := artifact.Write(ctx, dest, name, a.ContentType, a.Data); err != nil {
		return exportResult{}, fmt.Errorf("failed to store export: %w", err)
	}
	return exportResult{Name: name, Dest: dest, Rows: a.Rows}, nil
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\n' || r[0] == '\r' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r[0], nil
}

func joinDest(dest, name string) string {
	if strings.HasSuffix(dest, "/") || strings.HasSuffix(dest, "://") {
		return dest + name
	}
	return dest + "/" + name
}
