package certificates

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/leapstack-labs/certdesk/internal/i18n"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// PageData is everything the certificate page renders on first load.
type PageData struct {
	ViewID string
	View   table.View
	Labels i18n.Labels
}

// pageSignals seeds the client signals for a new view as a JSON object.
func pageSignals(viewID string, s table.State) string {
	return jsValue(map[string]any{
		"view":         viewID,
		"page":         s.Page,
		"pageSize":     s.PageSize,
		"tab":          s.StatusFacet,
		"search":       "",
		"sort":         "",
		"filter":       "",
		"dialog":       false,
		"commonName":   "",
		"organization": "",
		"applicant":    "",
		"email":        "",
	})
}

// jsValue renders v as a JavaScript literal. Strings come out quoted and
// escaped, so ids and sort keys cannot break out of an expression.
func jsValue(v any) string {
	out, err := templ.JSONString(v)
	if err != nil {
		return "null"
	}
	return out
}

// viewAction is the Datastar expression posting to an endpoint of a view.
// Every path segment is URL-escaped.
func viewAction(viewID string, segments ...string) string {
	parts := make([]string, 0, len(segments)+3)
	parts = append(parts, "", "certificates", "views", url.PathEscape(viewID))
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return "@post(" + jsValue(strings.Join(parts, "/")) + ")"
}

func tabClick(viewID string, facet int) string {
	return "$tab = " + strconv.Itoa(facet) + "; $page = 0; " + viewAction(viewID, "tab")
}

func sortClick(viewID string, current core.Sort, field string) string {
	return "$sort = " + jsValue(nextSort(current, field)) + "; " + viewAction(viewID, "sort")
}

func pageClick(viewID string, target int) string {
	return "$page = " + strconv.Itoa(target) + "; " + viewAction(viewID, "page")
}

func pageSizeChange(viewID string) string {
	return "$pageSize = Number(evt.target.value); $page = 0; " + viewAction(viewID, "size")
}

// facets lists the tabs in display order.
func facets() []int {
	return append([]int{core.StatusAny}, statusValues()...)
}

func statusValues() []int {
	out := make([]int, len(core.Statuses))
	for i, s := range core.Statuses {
		out[i] = int(s)
	}
	return out
}

func sortField(col table.Column) string {
	if col.Field == table.ColumnStatusLabel {
		return core.FieldStatus
	}
	return col.Field
}

// nextSort cycles a column through ascending, descending and unsorted.
func nextSort(current core.Sort, field string) string {
	if len(current) > 0 && current[0].Field == field {
		if current[0].Desc {
			return ""
		}
		return "-" + field
	}
	return field
}

// sortedBy reports whether field leads the sort, and in which direction.
func sortedBy(current core.Sort, field string) (sorted, desc bool) {
	if len(current) == 0 || current[0].Field != field {
		return false, false
	}
	return true, current[0].Desc
}

func sortedAsc(current core.Sort, field string) bool {
	sorted, desc := sortedBy(current, field)
	return sorted && !desc
}

func sortedDesc(current core.Sort, field string) bool {
	sorted, desc := sortedBy(current, field)
	return sorted && desc
}

// statusOf reads the status of a row whatever numeric type carried it.
func statusOf(row core.Row) core.Status {
	switch v := row[core.FieldStatus].(type) {
	case core.Status:
		return v
	case int:
		return core.Status(v)
	case int64:
		return core.Status(v)
	case float64:
		return core.Status(int(v))
	default:
		return -1
	}
}

// actionOrder is the display order of row action buttons.
var actionOrder = []string{"review", "approve", "reject", "revoke"}

var actionLabels = map[string]string{
	"review":  "Review",
	"approve": "Approve",
	"reject":  "Reject",
	"revoke":  "Revoke",
}

// allowedActions are the workflow actions the row's status permits.
func allowedActions(row core.Row) []string {
	status := statusOf(row)
	var out []string
	for _, name := range actionOrder {
		if status.CanTransition(rowActions[name]) {
			out = append(out, name)
		}
	}
	return out
}

func verified(row core.Row) bool {
	v, _ := row[core.FieldVerified].(bool)
	return v
}

func yesNo(v any) string {
	if b, _ := v.(bool); b {
		return "Yes"
	}
	return "No"
}

func emptyMessage(loading bool) string {
	if loading {
		return "Loading..."
	}
	return "No certificates match the current view."
}
