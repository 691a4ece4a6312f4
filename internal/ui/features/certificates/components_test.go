package certificates

import (
	"context"
	"encoding/json"
	"html"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/certdesk/internal/i18n"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

var clickPattern = regexp.MustCompile(`data-on:click="([^"]*)"`)

// clickExpressions returns the decoded data-on:click expressions of out.
func clickExpressions(out string) []string {
	var exprs []string
	for _, m := range clickPattern.FindAllStringSubmatch(out, -1) {
		exprs = append(exprs, html.UnescapeString(m[1]))
	}
	return exprs
}

func TestTable_HostileRowIDStaysInsideItsString(t *testing.T) {
	id := `x'); alert(1); ("<`
	v := table.View{
		State: table.DefaultState(core.StatusAny),
		Rows: []core.Row{{
			core.FieldID:         id,
			core.FieldCommonName: "a.example.com",
			core.FieldStatus:     int(core.StatusSubmitted),
			core.FieldVerified:   false,
		}},
		Total: 1,
		Schema: table.Schema{
			{Field: table.ColumnActions, DisplayName: "Actions", Renderer: table.RenderActions},
			{Field: table.ColumnVerify, DisplayName: "Verify", Renderer: table.RenderVerify},
			{Field: core.FieldCommonName, DisplayName: "Common Name", Sortable: true, Width: 120},
		},
	}

	var b strings.Builder
	require.NoError(t, Table("v1", v, i18n.For(language.English)).Render(context.Background(), &b))
	out := b.String()
	assert.NotContains(t, out, "alert(1); (\"", "raw id must not reach the markup")

	var actions []string
	for _, expr := range clickExpressions(out) {
		if strings.Contains(expr, "/rows/") {
			actions = append(actions, expr)
		}
	}
	require.NotEmpty(t, actions)

	for _, expr := range actions {
		require.True(t, strings.HasPrefix(expr, "@post(") && strings.HasSuffix(expr, ")"), expr)
		var target string
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(expr, "@post("), ")")), &target),
			"action argument should be a single string literal: %s", expr)

		segments := strings.Split(target, "/")
		require.Len(t, segments, 7, target)
		decoded, err := url.PathUnescape(segments[5])
		require.NoError(t, err)
		assert.Equal(t, id, decoded)
	}
}

func TestViewAction(t *testing.T) {
	tests := []struct {
		name     string
		viewID   string
		segments []string
		want     string
	}{
		{name: "plain", viewID: "v1", segments: []string{"page"}, want: `@post("/certificates/views/v1/page")`},
		{name: "row action", viewID: "v1", segments: []string{"rows", "abc", "approve"}, want: `@post("/certificates/views/v1/rows/abc/approve")`},
		{name: "quote in view id", viewID: `v'1`, segments: []string{"sort"}, want: `@post("/certificates/views/v%271/sort")`},
		{name: "slash in row id", viewID: "v1", segments: []string{"rows", "a/b", "verify"}, want: `@post("/certificates/views/v1/rows/a%2Fb/verify")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, viewAction(tt.viewID, tt.segments...))
		})
	}
}

func TestSortClick(t *testing.T) {
	sort := core.Sort{{Field: core.FieldCommonName}}
	assert.Equal(t, `$sort = "-common_name"; @post("/certificates/views/v1/sort")`, sortClick("v1", sort, core.FieldCommonName))
	assert.Equal(t, `$sort = "email"; @post("/certificates/views/v1/sort")`, sortClick("v1", sort, core.FieldEmail))
}

func TestPageSignals(t *testing.T) {
	s := table.DefaultState(int(core.StatusApproved))
	s.PageSize = 25

	var signals map[string]any
	require.NoError(t, json.Unmarshal([]byte(pageSignals(`v"1`, s)), &signals))
	assert.Equal(t, `v"1`, signals["view"])
	assert.EqualValues(t, 25, signals["pageSize"])
	assert.EqualValues(t, int(core.StatusApproved), signals["tab"])
	assert.Equal(t, false, signals["dialog"])
}
