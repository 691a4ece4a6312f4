package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/certdesk/internal/cli/output"
	clitestutil "github.com/leapstack-labs/certdesk/internal/cli/testutil"
	"github.com/leapstack-labs/certdesk/internal/client"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/internal/testutil"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

func newTestBrowser(t *testing.T) (*browser, *clitestutil.TestRenderer, *clitestutil.Project) {
	t.Helper()
	p := seededProject(t)
	p.Config.UI.SearchDebounce = 10 * time.Millisecond

	tr := clitestutil.NewTestRenderer(output.ModeMarkdown)
	cc := &CommandContext{
		Cfg:      p.Config,
		Logger:   testutil.NewTestLogger(t),
		Renderer: tr.Renderer,
		Store:    openStore(t, p.Config),
	}

	b := newBrowser(context.Background(), cc, table.DefaultState(core.StatusAny))
	t.Cleanup(b.close)
	require.NoError(t, b.show())
	tr.Out.Reset()
	return b, tr, p
}

func TestBrowser_Exec(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
		page  int
	}{
		{name: "page", lines: []string{":page 2"}, want: []string{"Page 2 of 2"}, page: 1},
		{name: "next then prev", lines: []string{":next", ":prev"}, want: []string{"Page 1 of 2"}, page: 0},
		{name: "size", lines: []string{":size 10"}, want: []string{"Page 1 of 1, 6 total"}, page: 0},
		{name: "search resets page", lines: []string{":page 2", ":search globex"}, want: []string{`search "globex"`, "vpn.globex.example"}, page: 0},
		{name: "filter", lines: []string{":filter organization=Acme"}, want: []string{"2 total", "filter organization=Acme"}, page: 0},
		{name: "tab", lines: []string{":tab revoked"}, want: []string{"Certificates: Revoked", "legacy.initech.example"}, page: 0},
		{name: "sort", lines: []string{":sort common_name"}, want: []string{"api.acme.example", "sort common_name"}, page: 0},
		{name: "refresh", lines: []string{":refresh"}, want: []string{"Page 1 of 2"}, page: 0},
		{name: "blank line", lines: []string{"   "}, page: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, tr, _ := newTestBrowser(t)
			for _, line := range tt.lines {
				quit, err := b.exec(line)
				require.NoError(t, err, line)
				assert.False(t, quit)
			}
			for _, want := range tt.want {
				assert.Contains(t, tr.Output(), want)
			}
			assert.Equal(t, tt.page, b.ctrl.State().Page)
		})
	}
}

func TestBrowser_ExecErrors(t *testing.T) {
	tests := []struct {
		line      string
		errSubstr string
	}{
		{line: "hello", errSubstr: "unknown input"},
		{line: ":bogus", errSubstr: "unknown command :bogus"},
		{line: ":page 0", errSubstr: "usage: :page"},
		{line: ":page x", errSubstr: "usage: :page"},
		{line: ":size 7", errSubstr: "page size"},
		{line: ":size big", errSubstr: "usage: :size"},
		{line: ":prev", errSubstr: "already on the first page"},
		{line: ":filter pem=x", errSubstr: "pem"},
		{line: ":sort nope", errSubstr: "nope"},
		{line: ":tab pending", errSubstr: "unknown status"},
	}

	b, _, _ := newTestBrowser(t)
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			quit, err := b.exec(tt.line)
			require.Error(t, err)
			assert.False(t, quit)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestBrowser_NextOnLastPage(t *testing.T) {
	b, _, _ := newTestBrowser(t)

	_, err := b.exec(":page 2")
	require.NoError(t, err)
	_, err = b.exec(":next")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already on the last page")
}

func TestBrowser_Quit(t *testing.T) {
	b, _, _ := newTestBrowser(t)
	for _, line := range []string{":quit", ":exit", ":q", ":QUIT"} {
		quit, err := b.exec(line)
		require.NoError(t, err)
		assert.True(t, quit, line)
	}
}

func TestBrowser_Help(t *testing.T) {
	b, tr, _ := newTestBrowser(t)
	_, err := b.exec(":help")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), ":export [dest]")
}

func TestBrowser_Export(t *testing.T) {
	b, tr, p := newTestBrowser(t)

	_, err := b.exec(":tab approved")
	require.NoError(t, err)
	_, err = b.exec(":export")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "Exported 1 rows to "+p.Config.Export.Dest)

	entries, err := os.ReadDir(p.Config.Export.Dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(p.Config.Export.Dest, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "mail.globex.example")

	_, err = b.exec(":tab draft")
	require.NoError(t, err)
	_, err = b.exec(":search nothing-matches")
	require.NoError(t, err)
	_, err = b.exec(":export")
	require.NoError(t, err)
	assert.Contains(t, tr.Output(), "nothing to export")
}

func TestBrowser_FetchError(t *testing.T) {
	p := clitestutil.SetupTestProject(t)
	tr := clitestutil.NewTestRenderer(output.ModeMarkdown)
	cc := &CommandContext{
		Cfg:      p.Config,
		Logger:   testutil.NewTestLogger(t),
		Renderer: tr.Renderer,
		Remote:   client.New("http://127.0.0.1:1"),
	}

	b := newBrowser(context.Background(), cc, table.DefaultState(core.StatusAny))
	defer b.close()

	err := b.show()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch failed")

	_, err = b.exec(":refresh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh failed")
}

func TestParseFacet(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: core.StatusAny},
		{in: "all", want: core.StatusAny},
		{in: "any", want: core.StatusAny},
		{in: "approved", want: int(core.StatusApproved)},
		{in: "2", want: int(core.StatusUnderReview)},
		{in: "9", wantErr: true},
		{in: "pending", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseFacet(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCellText(t *testing.T) {
	row := core.Row{
		core.FieldID:         "0123456789abcdef",
		core.FieldStatus:     int64(core.StatusApproved),
		core.FieldVerified:   false,
		core.FieldCommonName: "mail.globex.example",
	}

	assert.Equal(t, "01234567", cellText(row, core.FieldID))
	assert.Equal(t, "Approved", cellText(row, core.FieldStatus))
	assert.Equal(t, "no", cellText(row, core.FieldVerified))
	assert.Equal(t, "mail.globex.example", cellText(row, core.FieldCommonName))
}

func TestPageSummary(t *testing.T) {
	s := table.DefaultState(core.StatusAny)
	s.SearchText = "acme"
	sort, err := core.ParseSort("-created_at")
	require.NoError(t, err)
	s.Sort = sort

	got := pageSummary(table.View{State: s})
	assert.Equal(t, `Page 1 of 1, 0 total, search "acme", sort -created_at`, got)
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{in: ",", want: ','},
		{in: ";", want: ';'},
		{in: "tab", want: '\t'},
		{in: `\t`, want: '\t'},
		{in: "", wantErr: true},
		{in: ";;", wantErr: true},
		{in: `"`, wantErr: true},
		{in: "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDelimiter(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinDest(t *testing.T) {
	assert.Equal(t, "exports/a.csv", joinDest("exports", "a.csv"))
	assert.Equal(t, "exports/a.csv", joinDest("exports/", "a.csv"))
	assert.Equal(t, "mem://a.csv", joinDest("mem://", "a.csv"))
	assert.Equal(t, "s3://bucket/a.csv", joinDest("s3://bucket", "a.csv"))
}
