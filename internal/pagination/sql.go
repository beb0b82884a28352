package pagination

import (
	"fmt"
	"strings"
)

// ApplySQL renders the descriptor into Postgres predicate fragments and an
// order/limit tail. Field names come from endpoint declarations, never from
// raw client input, so they are interpolated directly; values always travel
// as placeholder args. argIndex is the next free placeholder number.
//
// The returned conds are AND-ed by the caller onto its base where clause.
// In cursor mode the limit requests one extra row so the store can decide
// whether a next cursor exists.
func ApplySQL(d Descriptor, idColumn string, argIndex int) (conds []string, tail string, args []any) {
	next := func() int {
		n := argIndex
		argIndex++
		return n
	}

	for _, f := range d.Filters {
		switch f.Op {
		case OpEqual:
			conds = append(conds, fmt.Sprintf("%s = $%d", f.Field, next()))
			args = append(args, f.Values[0])
		case OpIn, OpNotIn:
			placeholders := make([]string, len(f.Values))
			for i, v := range f.Values {
				placeholders[i] = fmt.Sprintf("$%d", next())
				args = append(args, v)
			}
			op := "in"
			if f.Op == OpNotIn {
				op = "not in"
			}
			conds = append(conds, fmt.Sprintf("%s %s (%s)", f.Field, op, strings.Join(placeholders, ",")))
		case OpGt, OpGte, OpLt, OpLte:
			conds = append(conds, fmt.Sprintf("%s %s $%d", f.Field, comparison(f.Op), next()))
			args = append(args, f.Values[0])
		case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
			op := "ilike"
			if f.Op == OpNotContains {
				op = "not ilike"
			}
			conds = append(conds, fmt.Sprintf("%s %s $%d", f.Field, op, next()))
			args = append(args, likePattern(f.Op, f.Values[0]))
		}
	}

	if d.Search != "" && len(d.SearchFields) > 0 {
		n := next()
		parts := make([]string, len(d.SearchFields))
		for i, field := range d.SearchFields {
			parts[i] = fmt.Sprintf("%s ilike $%d", field, n)
		}
		conds = append(conds, "("+strings.Join(parts, " or ")+")")
		args = append(args, likePattern(OpContains, d.Search))
	}

	orderBy := d.OrderBy
	if orderBy == "" {
		orderBy = idColumn
	}
	dir := "asc"
	cmp := ">"
	if d.Direction == Desc {
		dir = "desc"
		cmp = "<"
	}

	if d.CursorMode {
		if d.Cursor != nil {
			kn, in := next(), next()
			conds = append(conds, fmt.Sprintf("(%s, %s) %s ($%d, $%d)", orderBy, idColumn, cmp, kn, in))
			args = append(args, d.Cursor.Key, d.Cursor.ID)
		}
		tail = fmt.Sprintf("order by %s %s, %s %s limit %d", orderBy, dir, idColumn, dir, d.PerPage+1)
		return conds, tail, args
	}

	tail = fmt.Sprintf("order by %s %s, %s %s limit %d offset %d", orderBy, dir, idColumn, dir, d.PerPage, d.Skip())
	return conds, tail, args
}

func comparison(op Operator) string {
	switch op {
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	default:
		return "<="
	}
}

func likePattern(op Operator, value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
	switch op {
	case OpStartsWith:
		return escaped + "%"
	case OpEndsWith:
		return "%" + escaped
	default:
		return "%" + escaped + "%"
	}
}
