// Package pagination translates list query strings into normalized,
// deterministic query descriptors consumed by the Postgres stores.
package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

// Direction is a normalized sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Operator identifies a typed filter operation.
type Operator string

const (
	OpEqual       Operator = "equal"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
)

// FilterSpec allow-lists one filter field for an endpoint and fixes its
// operator. Multi-value operators (in, notIn) split the raw value on commas.
type FilterSpec struct {
	Field string
	Op    Operator
}

// Filter is one resolved filter taken from the query string.
type Filter struct {
	Field  string
	Op     Operator
	Values []string
}

// Options describes the pagination surface of a single endpoint. The zero
// value is not usable; every listing endpoint declares its own Options.
type Options struct {
	DefaultPerPage   int
	MaxPerPage       int
	DefaultOrderBy   string
	AvailableOrderBy []string
	DefaultDirection Direction
	SearchFields     []string
	Filters          []FilterSpec
	// CursorMode switches the endpoint from page/perPage addressing to an
	// opaque cursor. The two modes are mutually exclusive per endpoint.
	CursorMode bool
}

// Descriptor is the normalized, read-only query descriptor. Identical query
// strings always produce identical descriptors.
type Descriptor struct {
	Page      int
	PerPage   int
	Cursor    *Cursor
	OrderBy   string
	Direction Direction
	Search    string
	// SearchFields is copied from the endpoint options so the SQL builder
	// needs no second source of truth.
	SearchFields []string
	Filters      []Filter
	CursorMode   bool
}

// FromQuery builds a descriptor from a raw query string. Unknown orderBy
// fields fall back to the default; perPage is clamped to [1, MaxPerPage].
func FromQuery(q url.Values, opts Options) (Descriptor, error) {
	d := Descriptor{
		Page:         1,
		PerPage:      opts.DefaultPerPage,
		OrderBy:      opts.DefaultOrderBy,
		Direction:    opts.DefaultDirection,
		SearchFields: opts.SearchFields,
		CursorMode:   opts.CursorMode,
	}
	if d.PerPage <= 0 {
		d.PerPage = 20
	}
	if d.Direction != Desc {
		d.Direction = Asc
	}

	if opts.CursorMode {
		if raw := strings.TrimSpace(q.Get("cursor")); raw != "" {
			cur, err := DecodeCursor(raw)
			if err != nil {
				return Descriptor{}, err
			}
			d.Cursor = &cur
		}
	} else if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page >= 1 {
			d.Page = page
		}
	}

	if raw := strings.TrimSpace(q.Get("perPage")); raw != "" {
		if perPage, err := strconv.Atoi(raw); err == nil && perPage >= 1 {
			d.PerPage = perPage
		}
	}
	if opts.MaxPerPage > 0 && d.PerPage > opts.MaxPerPage {
		d.PerPage = opts.MaxPerPage
	}

	if raw := strings.TrimSpace(q.Get("orderBy")); raw != "" {
		for _, allowed := range opts.AvailableOrderBy {
			if raw == allowed {
				d.OrderBy = raw
				break
			}
		}
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("orderDirection"))) {
	case string(Asc):
		d.Direction = Asc
	case string(Desc):
		d.Direction = Desc
	}

	if len(opts.SearchFields) > 0 {
		d.Search = strings.TrimSpace(q.Get("search"))
	}

	// Filters resolve in the order the endpoint declares them, never in map
	// iteration order, so the descriptor stays reproducible.
	for _, spec := range opts.Filters {
		raw := strings.TrimSpace(q.Get(spec.Field))
		if raw == "" {
			continue
		}
		f := Filter{Field: spec.Field, Op: spec.Op}
		switch spec.Op {
		case OpIn, OpNotIn:
			for _, part := range strings.Split(raw, ",") {
				part = strings.TrimSpace(part)
				if part != "" {
					f.Values = append(f.Values, part)
				}
			}
			if len(f.Values) == 0 {
				continue
			}
		default:
			f.Values = []string{raw}
		}
		d.Filters = append(d.Filters, f)
	}

	return d, nil
}

// Skip returns the offset-mode row skip count.
func (d Descriptor) Skip() int {
	if d.CursorMode || d.Page < 1 {
		return 0
	}
	return (d.Page - 1) * d.PerPage
}

// TotalPages computes the page count for a resolved total row count.
func (d Descriptor) TotalPages(total int64) int64 {
	if d.PerPage <= 0 || total <= 0 {
		return 0
	}
	return (total + int64(d.PerPage) - 1) / int64(d.PerPage)
}
