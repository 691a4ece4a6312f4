package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/certdesk/internal/cli/output"
	"github.com/leapstack-labs/certdesk/internal/logging"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/pkg/core"
	"github.com/spf13/cobra"
)

const browsePrompt = "certdesk> "

// NewBrowseCommand creates the browse command.
func NewBrowseCommand() *cobra.Command {
	q := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through certificates interactively",
		Long: `Open an interactive session over the certificate table.

Each command changes the table state; the current page is printed after it
settles. Type :help for the list of commands.`,
		Example: `  # Browse the local store
  certdesk browse

  # Browse submitted certificates on a running server
  certdesk browse --server http://localhost:8765 --status submitted`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBrowse(cmd, q)
		},
	}
	q.bind(cmd, true)

	return cmd
}

func runBrowse(cmd *cobra.Command, q *queryFlags) error {
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
	b := newBrowser(ctx, cmdCtx, s)
	defer b.close()

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".certdesk_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          browsePrompt,
		HistoryFile:     historyFile,
		AutoComplete:    browseCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r := cmdCtx.Renderer
	r.Println("certdesk browser. Type :help for commands, :quit to exit")
	if err := b.show(); err != nil {
		r.Error(err.Error())
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}

		quit, err := b.exec(line)
		if err != nil {
			r.Error(err.Error())
		}
		if quit {
			return nil
		}
	}
}

// browser drives one table controller from typed commands.
type browser struct {
	ctx      context.Context
	cc       *CommandContext
	ctrl     *table.Controller
	fetcher  *reportingFetcher
	pipeline *table.ExportPipeline
	r        *output.Renderer
}

func newBrowser(ctx context.Context, cc *CommandContext, s table.State) *browser {
	f := &reportingFetcher{next: cc.Fetcher()}
	opts := []table.Option{
		table.WithInitialState(s),
		table.WithQuietPeriod(cc.Cfg.UI.SearchDebounce),
		table.WithLogger(logging.Component(cc.Logger, "table")),
	}
	if cc.Cfg.UI.DebounceFetch {
		opts = append(opts, table.WithDebouncedSearchFetch())
	}
	ctrl := table.New(ctx, f, s.StatusFacet, opts...)
	ctrl.Mount()

	pipeline := table.NewExportPipeline(cc.Exporter(),
		table.WithExportLogger(logging.Component(cc.Logger, "export")))

	return &browser{
		ctx:      ctx,
		cc:       cc,
		ctrl:     ctrl,
		fetcher:  f,
		pipeline: pipeline,
		r:        cc.Renderer,
	}
}

func (b *browser) close() {
	b.ctrl.Close()
}

// settle waits for a pending search reset and every fetch issued so far.
func (b *browser) settle() {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for b.ctrl.SearchPending() {
		select {
		case <-b.ctx.Done():
			return
		case <-tick.C:
		}
	}
	b.ctrl.Wait()
}

// show prints the settled view, or the error of the fetch behind it.
func (b *browser) show() error {
	b.settle()
	if err := b.fetcher.take(); err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	return renderView(b.r, b.ctrl.View())
}

// exec runs one command line. It reports whether the session should end.
func (b *browser) exec(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return false, fmt.Errorf("unknown input %q (type :help for commands)", line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true, nil

	case "help":
		printBrowseHelp(b.r)
		return false, nil

	case "page", "p":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return false, fmt.Errorf("usage: :page <n>, n starting at 1")
		}
		if err := b.ctrl.SetPage(n - 1); err != nil {
			return false, err
		}

	case "next", "n":
		v := b.ctrl.View()
		if v.State.Page+1 >= v.PageCount() {
			return false, errors.New("already on the last page")
		}
		_ = b.ctrl.SetPage(v.State.Page + 1)

	case "prev":
		v := b.ctrl.View()
		if v.State.Page == 0 {
			return false, errors.New("already on the first page")
		}
		_ = b.ctrl.SetPage(v.State.Page - 1)

	case "size":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("usage: :size <5|10|25|50>")
		}
		if err := b.ctrl.SetPageSize(n); err != nil {
			return false, err
		}

	case "search", "s":
		b.ctrl.SetSearchText(arg)

	case "filter", "f":
		f, err := core.ParseFilter(arg)
		if err != nil {
			return false, err
		}
		b.ctrl.SetFilter(f)

	case "sort":
		s, err := core.ParseSort(arg)
		if err != nil {
			return false, err
		}
		b.ctrl.SetSort(s)

	case "tab", "status":
		facet, err := parseFacet(arg)
		if err != nil {
			return false, err
		}
		b.ctrl.SetStatusFacet(facet)

	case "refresh", "r":
		if err := b.cc.Refresh(b.ctx); err != nil {
			return false, fmt.Errorf("refresh failed: %w", err)
		}
		b.ctrl.Reload()

	case "export", "x":
		return false, b.export(arg)

	default:
		return false, fmt.Errorf("unknown command :%s (type :help for commands)", name)
	}

	return false, b.show()
}

// export writes the current view's full matching set to dest, or export.dest.
func (b *browser) export(dest string) error {
	if dest == "" {
		dest = b.cc.Cfg.Export.Dest
	}
	b.settle()
	res, err := exportTo(b.ctx, b.pipeline, b.ctrl.ExportRequest(), dest, false)
	if errors.Is(err, table.ErrEmptyExport) {
		b.r.Warning("No certificates match, nothing to export.")
		return nil
	}
	if err != nil {
		return err
	}
	b.r.Success(fmt.Sprintf("Exported %d rows to %s", res.Rows, joinDest(res.Dest, res.Name)))
	return nil
}

func printBrowseHelp(r *output.Renderer) {
	r.Println(`
Commands:
  :page <n>         Go to page n
  :next / :prev     Move one page
  :size <n>         Rows per page (5, 10, 25, 50)
  :search <text>    Search; empty clears it
  :filter <expr>    Filter, e.g. organization=Acme; empty clears it
  :sort <keys>      Sort, e.g. -created_at,common_name; empty clears it
  :tab <status>     Status tab: all, submitted, approved, ...
  :refresh          Reload the page (and notify other viewers of a server)
  :export [dest]    Export every matching row
  :help             Show this help message
  :quit             Exit`)
}

func browseCompleter() *readline.PrefixCompleter {
	tabs := []readline.PrefixCompleterInterface{readline.PcItem("all")}
	for _, s := range core.Statuses {
		tabs = append(tabs, readline.PcItem(s.Key()))
	}
	sizes := make([]readline.PrefixCompleterInterface, 0, len(table.PageSizes))
	for _, n := range table.PageSizes {
		sizes = append(sizes, readline.PcItem(strconv.Itoa(n)))
	}

	return readline.NewPrefixCompleter(
		readline.PcItem(":page"),
		readline.PcItem(":next"),
		readline.PcItem(":prev"),
		readline.PcItem(":size", sizes...),
		readline.PcItem(":search"),
		readline.PcItem(":filter"),
		readline.PcItem(":sort"),
		readline.PcItem(":tab", tabs...),
		readline.PcItem(":refresh"),
		readline.PcItem(":export"),
		readline.PcItem(":help"),
		readline.PcItem(":quit"),
	)
}

// reportingFetcher remembers the last fetch error so the session can show
// it; the controller itself only logs failures.
type reportingFetcher struct {
	next table.Fetcher

	mu  sync.Mutex
	err error
}

func (f *reportingFetcher) Fetch(ctx context.Context, q core.PageQuery) (core.Page, error) {
	page, err := f.next.Fetch(ctx, q)
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	return page, err
}

func (f *reportingFetcher) take() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.err
	f.err = nil
	return err
}
