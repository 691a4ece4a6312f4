package commands

import (
	"fmt"

	"github.com/leapstack-labs/certdesk/internal/logging"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/pkg/core"
	"github.com/spf13/cobra"
)

// queryFlags are the flags shared by commands that read a table view.
type queryFlags struct {
	Page   int
	Size   int
	Search string
	Filter string
	Sort   string
	Status string
}

func (q *queryFlags) bind(cmd *cobra.Command, paged bool) {
	if paged {
		cmd.Flags().IntVar(&q.Page, "page", 1, "Page number, starting at 1")
		cmd.Flags().IntVar(&q.Size, "size", 0, "Rows per page: 5, 10, 25 or 50 (default: ui.page_size)")
	}
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "Free-text search over names, applicant and email")
	cmd.Flags().StringVarP(&q.Filter, "filter", "f", "", `Filter predicates, e.g. "organization=Acme,common_name~shop"`)
	cmd.Flags().StringVar(&q.Sort, "sort", "", `Sort keys, e.g. "-created_at,common_name"`)
	cmd.Flags().StringVar(&q.Status, "status", "all", "Status tab: all, draft, submitted, under_review, approved, rejected, revoked")

	_ = cmd.RegisterFlagCompletionFunc("status", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		out := []string{"all"}
		for _, s := range core.Statuses {
			out = append(out, s.Key())
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

// state converts the flags into a table state. defaultSize applies when --size is not set.
func (q *queryFlags) state(defaultSize int) (table.State, error) {
	facet, err := parseFacet(q.Status)
	if err != nil {
		return table.State{}, err
	}
	s := table.DefaultState(facet)
	s.SearchText = q.Search

	s.PageSize = defaultSize
	if q.Size != 0 {
		s.PageSize = q.Size
	}
	if !table.ValidPageSize(s.PageSize) {
		return table.State{}, table.ErrInvalidPageSize
	}
	if q.Page > 1 {
		s.Page = q.Page - 1
	} else if q.Page < 0 {
		return table.State{}, table.ErrInvalidPage
	}

	if s.Filter, err = core.ParseFilter(q.Filter); err != nil {
		return table.State{}, fmt.Errorf("invalid --filter: %w", err)
	}
	if s.Sort, err = core.ParseSort(q.Sort); err != nil {
		return table.State{}, fmt.Errorf("invalid --sort: %w", err)
	}
	return s, nil
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	q := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of certificates",
		Long: `List one page of certificate applications, the way the web table shows it.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown table (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # First page of every certificate
  certdesk list

  # Second page of approved certificates, 25 per page
  certdesk list --status approved --page 2 --size 25

  # Search and sort through a running server
  certdesk list --server http://localhost:8765 -s acme --sort -created_at`,
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, q)
		},
	}
	q.bind(cmd, true)

	return cmd
}

func runList(cmd *cobra.Command, q *queryFlags) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := q.state(cmdCtx.Cfg.UI.PageSize)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ctrl := table.New(ctx, cmdCtx.Fetcher(), s.StatusFacet,
		table.WithInitialState(s),
		table.WithLogger(logging.Component(cmdCtx.Logger, "table")))
	defer ctrl.Close()

	// One synchronous fetch of the bound state; its error is the command's.
	if _, err := ctrl.Refetch()(ctx); err != nil {
		return fmt.Errorf("failed to list certificates: %w", err)
	}
	return renderView(cmdCtx.Renderer, ctrl.View())
}
