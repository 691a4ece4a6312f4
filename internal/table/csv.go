package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// DefaultDelimiter separates fields in exported files.
const DefaultDelimiter = ','

// EncodeCSV serialises rows projected onto fields. The header holds the
// humanised field names; lines are joined by "\n" without a trailing newline.
func EncodeCSV(rows []core.Row, fields []string, delim rune) []byte {
	var b strings.Builder
	sep := string(delim)

	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = QuoteField(Humanize(f), delim)
	}
	b.WriteString(strings.Join(header, sep))

	values := make([]string, len(fields))
	for _, row := range rows {
		for i, f := range fields {
			values[i] = QuoteField(FormatValue(row[f]), delim)
		}
		b.WriteByte('\n')
		b.WriteString(strings.Join(values, sep))
	}
	return []byte(b.String())
}

// FormatValue renders a cell value as text. nil becomes the empty string and
// times are written as RFC 3339 in UTC.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// QuoteField quotes s when it contains the delimiter, a double quote or a
// line break, doubling embedded quotes. Anything else is returned unchanged.
func QuoteField(s string, delim rune) string {
	if strings.ContainsRune(s, delim) || strings.ContainsAny(s, "\"\r\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
