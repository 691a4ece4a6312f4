package state

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// certificateColumns is the projection shared by every certificate read.
const certificateColumns = `id, common_name, organization, applicant, email, status,
	serial, fingerprint, verified, valid_from, valid_until, created_at, updated_at, pem`

// searchColumns are matched case-insensitively by the free-text search.
var searchColumns = []string{
	core.FieldCommonName,
	core.FieldOrganization,
	core.FieldApplicant,
	core.FieldEmail,
}

// defaultOrder applies when a query carries no sort keys.
const defaultOrder = "created_at DESC, id"

// whereClause builds the WHERE clause shared by page reads and exports.
// Column names come from the core.CertificateFields whitelist only.
func whereClause(search string, filter core.Filter, statuses []int) (string, []any, error) {
	var conds []string
	var args []any

	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		conds = append(conds, "status IN ("+strings.Join(marks, ", ")+")")
	}

	if text := strings.TrimSpace(search); text != "" {
		pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
		ors := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			ors[i] = "LOWER(" + col + `) LIKE ? ESCAPE '\'`
			args = append(args, pattern)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if err := filter.Validate(); err != nil {
		return "", nil, err
	}
	for _, p := range filter {
		cond, arg, err := predicate(p)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func predicate(p core.Predicate) (string, any, error) {
	col := p.Field
	switch p.Op {
	case core.OpContains:
		return "LOWER(" + col + `) LIKE ? ESCAPE '\'`, "%" + escapeLike(strings.ToLower(p.Value)) + "%", nil
	case core.OpPrefix:
		return "LOWER(" + col + `) LIKE ? ESCAPE '\'`, escapeLike(strings.ToLower(p.Value)) + "%", nil
	}

	arg, err := filterValue(p.Field, p.Value)
	if err != nil {
		return "", nil, err
	}
	ops := map[core.Op]string{
		core.OpEq:  "=",
		core.OpNeq: "<>",
		core.OpGt:  ">",
		core.OpGte: ">=",
		core.OpLt:  "<",
		core.OpLte: "<=",
	}
	return col + " " + ops[p.Op] + " ?", arg, nil
}

// filterValue converts a textual filter value to the column's type.
func filterValue(field, value string) (any, error) {
	switch field {
	case core.FieldStatus:
		st, err := core.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		return int(st), nil
	case core.FieldVerified:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q for %s", value, field)
		}
		return b, nil
	case core.FieldValidFrom, core.FieldValidUntil, core.FieldCreatedAt, core.FieldUpdatedAt:
		for _, layout := range []string{time.RFC3339, time.DateTime, time.DateOnly} {
			if t, err := time.Parse(layout, value); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, fmt.Errorf("invalid time %q for %s", value, field)
	default:
		return value, nil
	}
}

func orderClause(sort core.Sort) (string, error) {
	if len(sort) == 0 {
		return " ORDER BY " + defaultOrder, nil
	}
	if err := sort.Validate(); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(sort)+1)
	hasID := false
	for _, k := range sort {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, k.Field+" "+dir)
		hasID = hasID || k.Field == core.FieldID
	}
	if !hasID {
		parts = append(parts, "id")
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
