package engine

import (
	"maps"
	"strconv"
)

// Well-known Params keys understood by the bundled providers.
const (
	ParamFilters = "filters"
	ParamSort    = "sort"
	ParamOrder   = "order"
	ParamOffset  = "offset"
	ParamLimit   = "limit"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Filters maps attribute names to the values records must match.
type Filters = map[string]any

// Params is the open bag of parameters passed to data provider calls.
// Providers may understand keys beyond the well-known ones.
type Params map[string]any

// Filters returns the filters entry, or an empty map when it is absent.
func (p Params) Filters() Filters {
	return asFilters(p[ParamFilters])
}

// Sort returns the attribute to sort by, or "".
func (p Params) Sort() string {
	s, _ := p[ParamSort].(string)
	return s
}

// Order returns the sort order, defaulting to OrderAsc.
func (p Params) Order() string {
	if s, ok := p[ParamOrder].(string); ok && s != "" {
		return s
	}
	return OrderAsc
}

// Offset returns the number of records to skip.
func (p Params) Offset() int {
	n, _ := toInt(p[ParamOffset])
	return n
}

// Limit returns the maximum number of records and whether a limit was given.
func (p Params) Limit() (int, bool) {
	return toInt(p[ParamLimit])
}

// Clone returns a copy of p with its filters copied one level deep.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	c := maps.Clone(p)
	if f, ok := p[ParamFilters]; ok {
		c[ParamFilters] = maps.Clone(asFilters(f))
	}
	return c
}

// MergeParams merges params over defaults. Top-level keys from params win;
// filters are merged one level deeper with params filters winning. The result
// always contains a filters entry. Neither input is modified.
func MergeParams(defaults, params Params) Params {
	out := make(Params, len(defaults)+len(params)+1)
	maps.Copy(out, defaults)
	maps.Copy(out, params)

	filters := make(Filters)
	maps.Copy(filters, defaults.Filters())
	maps.Copy(filters, params.Filters())
	out[ParamFilters] = filters
	return out
}

func asFilters(v any) Filters {
	switch f := v.(type) {
	case map[string]any:
		return f
	case Params:
		return map[string]any(f)
	}
	return Filters{}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}
