// Package caseconv converts field names between the console's camelCase and
// the backend's snake_case, and rewrites the keys of decoded JSON trees.
package caseconv

import (
	"sort"
	"strings"
	"unicode"
)

// ToSnake converts a camelCase name to snake_case by inserting an
// underscore before every upper-case letter and lowering it:
// "isSysAdmin" becomes "is_sys_admin" and "ID" becomes "_i_d". Names
// already in snake_case are returned unchanged.
func ToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToCamel converts a snake_case name to camelCase by upper-casing every
// lower-case letter that follows a single underscore: "service_name"
// becomes "serviceName" and "_i_d" becomes "ID", undoing ToSnake. A
// trailing underscore, or one followed by a digit or another underscore,
// is kept as-is.
func ToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	rs := []rune(s)

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r == '_' && i+1 < len(rs) && unicode.IsLower(rs[i+1]) && (i == 0 || rs[i-1] != '_') {
			b.WriteRune(unicode.ToUpper(rs[i+1]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RewriteKeys returns a copy of v with every object key passed through fn,
// recursing into objects and arrays. Non-object values are returned as-is.
// When two source keys convert to the same name, keys are visited in sorted
// order and the last one wins.
func RewriteKeys(v any, fn func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[fn(k)] = RewriteKeys(t[k], fn)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = RewriteKeys(e, fn)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = RewriteKeys(e, fn)
		}
		return out
	default:
		return v
	}
}

// ToWire rewrites a JSON tree from camelCase to snake_case keys.
func ToWire(v any) any { return RewriteKeys(v, ToSnake) }

// FromWire rewrites a JSON tree from snake_case to camelCase keys.
func FromWire(v any) any { return RewriteKeys(v, ToCamel) }
