// Package merge combines the property sets of records that denote one entity.
//
// The policy is first-writer-wins: a known, non-empty value is never replaced.
// Empty values are filled from the incoming side, list values are unioned and
// differing scalars are kept as they were and reported as conflicts.
package merge

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Conflict records a field where both sides held different non-empty values.
type Conflict struct {
	Key      string
	Existing any
	Incoming any
}

// Result represents the outcome of a merge
type Result struct {
	Merged    map[string]any
	Conflicts []Conflict
	// Changed is set when Merged differs from the existing map.
	Changed bool
}

// Merge combines incoming into existing without mutating either map. Empty
// incoming values are ignored.
func Merge(existing, incoming map[string]any) *Result {
	result := &Result{Merged: make(map[string]any, len(existing)+len(incoming))}
	for k, v := range existing {
		result.Merged[k] = v
	}

	for _, key := range sortedKeys(incoming) {
		in := incoming[key]
		cur := existing[key]

		switch {
		case IsEmpty(in):
		case IsEmpty(cur):
			result.Merged[key] = in
			result.Changed = true
		case Equal(cur, in):
		case isList(cur) && isList(in):
			union, grew := unionLists(toList(cur), toList(in))
			if grew {
				result.Merged[key] = union
				result.Changed = true
			}
		default:
			result.Conflicts = append(result.Conflicts, Conflict{Key: key, Existing: cur, Incoming: in})
		}
	}

	return result
}

// Overwrite applies last-writer-wins: incoming non-empty values replace
// existing ones. Empty incoming values still never clear a known value.
func Overwrite(existing, incoming map[string]any) *Result {
	result := &Result{Merged: make(map[string]any, len(existing)+len(incoming))}
	for k, v := range existing {
		result.Merged[k] = v
	}
	for _, key := range sortedKeys(incoming) {
		in := incoming[key]
		if IsEmpty(in) {
			continue
		}
		cur := existing[key]
		if !Equal(cur, in) {
			result.Merged[key] = in
			result.Changed = true
		}
	}
	return result
}

// IsEmpty reports whether v carries no information: nil, a blank string, an
// empty list or an empty map.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// Equal compares property values, treating all numeric kinds as float64 and
// all list kinds as []any.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && (fa == fb || (math.IsNaN(fa) && math.IsNaN(fb)))
	}
	if isList(a) || isList(b) {
		if !isList(a) || !isList(b) {
			return false
		}
		la, lb := toList(a), toList(b)
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	if ma, ok := a.(map[string]any); ok {
		mb, ok := b.(map[string]any)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, v := range ma {
			w, ok := mb[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// EqualMaps reports whether two property maps hold equal values for the same keys.
func EqualMaps(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

// FormatConflicts returns a human-readable summary of merge conflicts
func FormatConflicts(conflicts []Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		parts = append(parts, fmt.Sprintf("%s: kept %v, ignored %v", c.Key, c.Existing, c.Incoming))
	}
	return strings.Join(parts, "; ")
}

func unionLists(existing, incoming []any) ([]any, bool) {
	out := make([]any, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	grew := false
	for _, item := range incoming {
		found := false
		for _, have := range out {
			if Equal(have, item) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, item)
			grew = true
		}
	}
	return out, grew
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	}
	if v == nil {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func toList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
