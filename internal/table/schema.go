package table

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/certdesk/pkg/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Renderer names how a column's cells are drawn.
type Renderer string

// Renderers.
const (
	RenderText     Renderer = "text"
	RenderBool     Renderer = "bool"
	RenderDateTime Renderer = "datetime"
	RenderActions  Renderer = "actions"
	RenderVerify   Renderer = "verify"
	RenderStatus   Renderer = "status"
)

// Synthetic column fields. They never appear in raw rows.
const (
	ColumnActions     = "_actions"
	ColumnVerify      = "_verify"
	ColumnStatusLabel = "_status_label"
)

// Column describes one displayed column.
type Column struct {
	Field       string   `json:"field"`
	DisplayName string   `json:"displayName"`
	Width       int      `json:"width"`
	Sortable    bool     `json:"sortable"`
	Filterable  bool     `json:"filterable"`
	Renderer    Renderer `json:"renderer"`
}

// Synthetic reports whether the column is not backed by a row field.
func (c Column) Synthetic() bool {
	return strings.HasPrefix(c.Field, "_")
}

// Schema is the ordered list of displayed columns.
type Schema []Column

// SchemaGenerator derives a schema. Returning an empty schema means "not yet".
type SchemaGenerator func(rows []core.Row) Schema

// SchemaCache generates the display schema once and freezes it.
type SchemaCache struct {
	gen SchemaGenerator

	mu     sync.RWMutex
	schema Schema
}

// NewSchemaCache creates a cache around gen.
func NewSchemaCache(gen SchemaGenerator) *SchemaCache {
	return &SchemaCache{gen: gen}
}

// Observe offers a result set to the cache. Only the first call that yields a
// non-empty schema has any effect.
func (c *SchemaCache) Observe(rows []core.Row) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.schema) > 0 || c.gen == nil {
		return false
	}
	s := c.gen(rows)
	if len(s) == 0 {
		return false
	}
	c.schema = s
	return true
}

// Schema returns the frozen schema, or nil if none has been generated.
func (c *SchemaCache) Schema() Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.schema)
}

// Ready reports whether a schema has been generated.
func (c *SchemaCache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.schema) > 0
}

// syntheticColumns are placed ahead of the data columns, in this order.
func syntheticColumns() Schema {
	return Schema{
		{Field: ColumnActions, DisplayName: "Actions", Width: 80, Renderer: RenderActions},
		{Field: ColumnVerify, DisplayName: "Verify", Width: 90, Renderer: RenderVerify},
		{Field: ColumnStatusLabel, DisplayName: "Status", Width: 120, Sortable: true, Renderer: RenderStatus},
	}
}

// StaticSchema builds the schema from a declared field list. It does not
// depend on row data, so the schema is ready before the first fetch.
func StaticSchema(fields []core.FieldSpec) SchemaGenerator {
	return func(_ []core.Row) Schema {
		s := syntheticColumns()
		for _, f := range fields {
			if f.Name == core.FieldStatus {
				continue // shown through the status label column
			}
			s = append(s, dataColumn(f))
		}
		return s
	}
}

// ObservedSchema derives the data columns from the first non-empty result.
// The identity field comes first, the rest alphabetically.
func ObservedSchema() SchemaGenerator {
	return func(rows []core.Row) Schema {
		if len(rows) == 0 {
			return nil
		}
		names := make([]string, 0, len(rows[0]))
		for name := range rows[0] {
			if name == core.FieldStatus {
				continue
			}
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if names[i] == core.FieldID || names[j] == core.FieldID {
				return names[i] == core.FieldID
			}
			return names[i] < names[j]
		})

		s := syntheticColumns()
		for _, name := range names {
			spec, ok := core.LookupField(name)
			if !ok {
				spec = core.FieldSpec{Name: name}
			}
			s = append(s, dataColumn(spec))
		}
		return s
	}
}

func dataColumn(f core.FieldSpec) Column {
	col := Column{
		Field:       f.Name,
		DisplayName: Humanize(f.Name),
		Width:       160,
		Sortable:    f.Sortable,
		Filterable:  f.Filterable,
		Renderer:    RenderText,
	}
	switch {
	case f.Name == core.FieldID:
		col.Width = 260
	case f.Name == core.FieldVerified:
		col.Width = 90
		col.Renderer = RenderBool
	case strings.HasSuffix(f.Name, "_at") || strings.HasPrefix(f.Name, "valid_"):
		col.Width = 170
		col.Renderer = RenderDateTime
	}
	return col
}

// acronyms keep their upper case when humanised.
var acronyms = map[string]string{
	"id":  "ID",
	"pem": "PEM",
	"url": "URL",
	"csr": "CSR",
}

// Humanize turns a field name into a header label: "valid_until" -> "Valid Until".
func Humanize(field string) string {
	words := strings.FieldsFunc(field, func(r rune) bool { return r == '_' || r == '-' })
	caser := cases.Title(language.English)
	for i, w := range words {
		if a, ok := acronyms[strings.ToLower(w)]; ok {
			words[i] = a
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}
