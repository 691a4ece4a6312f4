package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/certdesk/internal/cli/output"
	"github.com/leapstack-labs/certdesk/internal/i18n"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/pkg/core"
	"golang.org/x/text/language"
)

// listFields are the columns of the CLI certificate table.
var listFields = []string{
	core.FieldID,
	core.FieldCommonName,
	core.FieldOrganization,
	core.FieldApplicant,
	core.FieldStatus,
	core.FieldVerified,
	core.FieldValidUntil,
	core.FieldCreatedAt,
}

// pageOutput is the JSON shape of one rendered page.
type pageOutput struct {
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	Pages    int        `json:"pages"`
	Total    int        `json:"total"`
	Search   string     `json:"search,omitempty"`
	Filter   string     `json:"filter,omitempty"`
	Sort     string     `json:"sort,omitempty"`
	Facet    string     `json:"facet"`
	Rows     []core.Row `json:"rows"`
}

var labels = i18n.For(language.English)

// renderView writes one page of the table in the renderer's mode.
func renderView(r *output.Renderer, v table.View) error {
	if r.EffectiveMode() == output.ModeJSON {
		rows := v.Rows
		if rows == nil {
			rows = []core.Row{}
		}
		return r.JSON(pageOutput{
			Page:     v.State.Page + 1,
			PageSize: v.State.PageSize,
			Pages:    v.PageCount(),
			Total:    v.Total,
			Search:   v.State.SearchText,
			Filter:   v.State.Filter.String(),
			Sort:     v.State.Sort.String(),
			Facet:    labels.Facet(v.State.StatusFacet),
			Rows:     rows,
		})
	}

	r.Header(2, fmt.Sprintf("Certificates: %s", labels.Facet(v.State.StatusFacet)))
	if len(v.Rows) == 0 {
		r.Muted("(0 rows)")
		return nil
	}

	headers := make([]string, len(listFields))
	for i, f := range listFields {
		headers[i] = table.Humanize(f)
	}
	cells := make([][]string, len(v.Rows))
	for i, row := range v.Rows {
		cells[i] = make([]string, len(listFields))
		for j, f := range listFields {
			cells[i][j] = cellText(row, f)
		}
	}
	r.Table(headers, cells)
	r.Muted(pageSummary(v))
	return nil
}

func cellText(row core.Row, field string) string {
	v := row[field]
	switch field {
	case core.FieldStatus:
		if n, ok := statusValue(v); ok {
			return labels.Status(core.Status(n))
		}
	case core.FieldVerified:
		if b, ok := v.(bool); ok {
			if b {
				return "yes"
			}
			return "no"
		}
	case core.FieldID:
		// Short ids are enough to address rows by prefix.
		if s, ok := v.(string); ok && len(s) > 8 {
			return s[:8]
		}
	}
	return table.FormatValue(v)
}

func statusValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case core.Status:
		return int(n), true
	}
	return 0, false
}

func pageSummary(v table.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page %d of %d, %d total", v.State.Page+1, max(v.PageCount(), 1), v.Total)
	if v.State.SearchText != "" {
		fmt.Fprintf(&b, ", search %q", v.State.SearchText)
	}
	if len(v.State.Filter) > 0 {
		fmt.Fprintf(&b, ", filter %s", v.State.Filter)
	}
	if len(v.State.Sort) > 0 {
		fmt.Fprintf(&b, ", sort %s", v.State.Sort)
	}
	return b.String()
}

// parseFacet accepts "all", a status key or a status number.
func parseFacet(s string) (int, error) {
	if s == "" || s == "all" || s == "any" {
		return core.StatusAny, nil
	}
	st, err := core.ParseStatus(s)
	if err != nil {
		return 0, err
	}
	return int(st), nil
}
