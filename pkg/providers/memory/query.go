package memory

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/openfroyo/rbkit/pkg/engine"
)

// Query filters, sorts and paginates records as GetMany does and returns
// the page together with the number of matches before pagination. Other
// providers that hold whole collections in hand reuse it.
func Query(records []engine.Record, params engine.Params) ([]engine.Record, int64) {
	filters := params.Filters()
	matched := make([]engine.Record, 0, len(records))
	for _, rec := range records {
		if matches(rec, filters) {
			matched = append(matched, rec)
		}
	}

	if attr := params.Sort(); attr != "" {
		desc := params.Order() == engine.OrderDesc
		slices.SortStableFunc(matched, func(a, b engine.Record) int {
			n := compareValues(a[attr], b[attr])
			if desc {
				return -n
			}
			return n
		})
	}

	total := len(matched)
	offset := min(max(params.Offset(), 0), total)
	end := total
	if limit, ok := params.Limit(); ok && limit >= 0 {
		end = min(offset+limit, total)
	}
	return matched[offset:end], int64(total)
}

// NormalizeKey normalizes keys so 1, int64(1), 1.0 and "1" address the same
// record. Strings are kept as they are, so "01" and "1e0" stay distinct, and
// integers are formatted exactly. A float only maps onto an integer key when
// it is whole and within the range floats represent exactly.
func NormalizeKey(k any) string {
	switch n := k.(type) {
	case string:
		return n
	case int:
		return strconv.FormatInt(int64(n), 10)
	case int8:
		return strconv.FormatInt(int64(n), 10)
	case int16:
		return strconv.FormatInt(int64(n), 10)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint:
		return strconv.FormatUint(uint64(n), 10)
	case uint8:
		return strconv.FormatUint(uint64(n), 10)
	case uint16:
		return strconv.FormatUint(uint64(n), 10)
	case uint32:
		return strconv.FormatUint(uint64(n), 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	case float32:
		return floatKey(float64(n))
	case float64:
		return floatKey(n)
	}
	return fmt.Sprint(k)
}

// maxExactFloat is 2^53, the largest magnitude below which every integer
// has an exact float64 representation.
const maxExactFloat = 1 << 53

func floatKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < maxExactFloat {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// matches reports whether rec satisfies every filter. A slice filter value
// matches any of its elements.
func matches(rec engine.Record, filters engine.Filters) bool {
	for attr, want := range filters {
		if attr == SearchFilter {
			if !search(rec, fmt.Sprint(want)) {
				return false
			}
			continue
		}

		got, ok := rec[attr]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []any:
			if !slices.ContainsFunc(w, func(v any) bool { return equal(got, v) }) {
				return false
			}
		case []string:
			if !slices.ContainsFunc(w, func(v string) bool { return equal(got, v) }) {
				return false
			}
		default:
			if !equal(got, want) {
				return false
			}
		}
	}
	return true
}

func search(rec engine.Record, term string) bool {
	term = strings.ToLower(term)
	for _, v := range rec {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func equal(a, b any) bool {
	return NormalizeKey(a) == NormalizeKey(b)
}

func compareValues(a, b any) int {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return cmp.Compare(fa, fb)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
