package core

import (
	"fmt"
	"strings"
)

// Row is one record of the backing collection, keyed by field name.
// Every row carries FieldID as its identity.
type Row map[string]any

// ID returns the identity of the row.
func (r Row) ID() string {
	if v, ok := r[FieldID].(string); ok {
		return v
	}
	if v, ok := r[FieldID]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Certificate field names as exposed to tables, filters and exports.
const (
	FieldID           = "id"
	FieldCommonName   = "common_name"
	FieldOrganization = "organization"
	FieldApplicant    = "applicant"
	FieldEmail        = "email"
	FieldStatus       = "status"
	FieldSerial       = "serial"
	FieldFingerprint  = "fingerprint"
	FieldVerified     = "verified"
	FieldValidFrom    = "valid_from"
	FieldValidUntil   = "valid_until"
	FieldCreatedAt    = "created_at"
	FieldUpdatedAt    = "updated_at"
)

// FieldSpec describes how a field may be used in queries.
type FieldSpec struct {
	Name       string
	Sortable   bool
	Filterable bool
	Searchable bool
}

// CertificateFields is the ordered list of fields a certificate row exposes.
var CertificateFields = []FieldSpec{
	{Name: FieldID, Filterable: true},
	{Name: FieldCommonName, Sortable: true, Filterable: true, Searchable: true},
	{Name: FieldOrganization, Sortable: true, Filterable: true, Searchable: true},
	{Name: FieldApplicant, Sortable: true, Filterable: true, Searchable: true},
	{Name: FieldEmail, Sortable: true, Filterable: true, Searchable: true},
	{Name: FieldStatus, Sortable: true, Filterable: true},
	{Name: FieldSerial, Filterable: true},
	{Name: FieldFingerprint, Filterable: true},
	{Name: FieldVerified, Sortable: true, Filterable: true},
	{Name: FieldValidFrom, Sortable: true, Filterable: true},
	{Name: FieldValidUntil, Sortable: true, Filterable: true},
	{Name: FieldCreatedAt, Sortable: true, Filterable: true},
	{Name: FieldUpdatedAt, Sortable: true, Filterable: true},
}

// LookupField returns the spec of a certificate field.
func LookupField(name string) (FieldSpec, bool) {
	for _, f := range CertificateFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ExportFields is the fixed column set of certificate exports.
// It is deliberately narrower than the display schema.
var ExportFields = []string{
	FieldID,
	FieldCommonName,
	FieldOrganization,
	FieldApplicant,
	FieldEmail,
	FieldStatus,
	FieldSerial,
	FieldValidUntil,
	FieldCreatedAt,
}

// Op is a filter predicate operator.
type Op string

// Filter operators.
const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpContains Op = "contains"
	OpPrefix   Op = "prefix"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
)

// opSymbols maps textual operators to Op, longest symbols first.
var opSymbols = []struct {
	symbol string
	op     Op
}{
	{"!=", OpNeq},
	{">=", OpGte},
	{"<=", OpLte},
	{"=", OpEq},
	{"~", OpContains},
	{"^", OpPrefix},
	{">", OpGt},
	{"<", OpLt},
}

// Predicate is a single field condition.
type Predicate struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value string `json:"value"`
}

func (p Predicate) String() string {
	for _, s := range opSymbols {
		if s.op == p.Op {
			return p.Field + s.symbol + p.Value
		}
	}
	return p.Field + "?" + p.Value
}

// Filter is a conjunction of predicates.
type Filter []Predicate

func (f Filter) String() string {
	parts := make([]string, len(f))
	for i, p := range f {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

// Equal reports whether two filters hold the same predicates in the same order.
func (f Filter) Equal(other Filter) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate checks every predicate against the certificate field whitelist.
func (f Filter) Validate() error {
	for _, p := range f {
		spec, ok := LookupField(p.Field)
		if !ok || !spec.Filterable {
			return fmt.Errorf("field %q is not filterable", p.Field)
		}
		switch p.Op {
		case OpEq, OpNeq, OpContains, OpPrefix, OpGt, OpGte, OpLt, OpLte:
		default:
			return fmt.Errorf("unknown operator %q", p.Op)
		}
	}
	return nil
}

// ParseFilter parses "field=value,field~value" notation.
// Supported operators: = != ~ (contains) ^ (prefix) > >= < <=.
// Values cannot contain commas.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var f Filter
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := parsePredicate(part)
		if err != nil {
			return nil, err
		}
		f = append(f, p)
	}
	return f, f.Validate()
}

func parsePredicate(s string) (Predicate, error) {
	best := -1
	var bestOp Op
	var bestLen int
	for _, sym := range opSymbols {
		idx := strings.Index(s, sym.symbol)
		if idx <= 0 {
			continue
		}
		if best == -1 || idx < best || (idx == best && len(sym.symbol) > bestLen) {
			best, bestOp, bestLen = idx, sym.op, len(sym.symbol)
		}
	}
	if best == -1 {
		return Predicate{}, fmt.Errorf("invalid filter expression %q", s)
	}
	return Predicate{
		Field: strings.TrimSpace(s[:best]),
		Op:    bestOp,
		Value: strings.TrimSpace(s[best+bestLen:]),
	}, nil
}

// SortKey orders by one field.
type SortKey struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// Sort is an ordered list of sort keys; earlier keys take precedence.
type Sort []SortKey

func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, k := range s {
		if k.Desc {
			parts[i] = "-" + k.Field
		} else {
			parts[i] = k.Field
		}
	}
	return strings.Join(parts, ",")
}

// Equal reports whether two sorts are identical.
func (s Sort) Equal(other Sort) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate checks every key against the certificate field whitelist.
func (s Sort) Validate() error {
	for _, k := range s {
		spec, ok := LookupField(k.Field)
		if !ok || !spec.Sortable {
			return fmt.Errorf("field %q is not sortable", k.Field)
		}
	}
	return nil
}

// ParseSort parses "-created_at,common_name" notation; a leading '-' sorts descending.
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out Sort
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := SortKey{Field: part}
		if strings.HasPrefix(part, "-") {
			key = SortKey{Field: part[1:], Desc: true}
		} else if strings.HasPrefix(part, "+") {
			key.Field = part[1:]
		}
		out = append(out, key)
	}
	return out, out.Validate()
}

// PageQuery is the request of a paginated fetch.
type PageQuery struct {
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	SearchText string `json:"searchText"`
	Filter     Filter `json:"filter"`
	Sort       Sort   `json:"sort"`
	Status     []int  `json:"status"`
}

// Page is the response of a paginated fetch.
// Total counts every matching row regardless of pagination.
type Page struct {
	Data  []Row `json:"data"`
	Total int   `json:"total"`
}

// ExportRequest asks for the entire matching set; it carries no pagination.
type ExportRequest struct {
	Filter     Filter `json:"filter"`
	Sort       Sort   `json:"sort"`
	SearchText string `json:"searchText"`
	Status     []int  `json:"status,omitempty"`
}

// ExportResponse wraps an export result on the wire.
type ExportResponse struct {
	Data []Row `json:"data"`
}

// FacetStatuses converts a facet value into the wire status list.
// StatusAny yields an empty list, meaning no status restriction.
func FacetStatuses(facet int) []int {
	if facet == StatusAny {
		return nil
	}
	return []int{facet}
}
