// Package verbs encodes sets of HTTP verbs as the backend's bitmask.
package verbs

import (
	"fmt"
	"strconv"
	"strings"
)

// Mask is a set of verbs, one bit per verb.
type Mask uint8

const (
	GET Mask = 1 << iota
	POST
	PUT
	PATCH
	DELETE
	OPTIONS
	HEAD
	COPY

	None Mask = 0
	All  Mask = GET | POST | PUT | PATCH | DELETE | OPTIONS | HEAD | COPY
)

// ordered lists verbs in bit order.
var ordered = []struct {
	bit  Mask
	name string
}{
	{GET, "GET"},
	{POST, "POST"},
	{PUT, "PUT"},
	{PATCH, "PATCH"},
	{DELETE, "DELETE"},
	{OPTIONS, "OPTIONS"},
	{HEAD, "HEAD"},
	{COPY, "COPY"},
}

// Lookup returns the bit for a verb name, case-insensitively.
func Lookup(name string) (Mask, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, v := range ordered {
		if v.name == name {
			return v.bit, true
		}
	}
	return None, false
}

// Encode folds verb names into a Mask. Duplicates are allowed.
func Encode(names []string) (Mask, error) {
	var m Mask
	for _, n := range names {
		bit, ok := Lookup(n)
		if !ok {
			return None, fmt.Errorf("verbs: unknown verb %q", n)
		}
		m |= bit
	}
	return m, nil
}

// Parse accepts either a decimal mask ("3") or a comma-separated verb list
// ("GET,POST").
func Parse(s string) (Mask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return None, nil
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return Mask(n), nil
	}
	return Encode(strings.Split(s, ","))
}

// Decode lists the verbs in m in bit order.
func (m Mask) Decode() []string {
	var out []string
	for _, v := range ordered {
		if m&v.bit != 0 {
			out = append(out, v.name)
		}
	}
	return out
}

// Has reports whether every bit of other is set in m.
func (m Mask) Has(other Mask) bool {
	return m&other == other && other != None
}

// Allows reports whether the verb name is in m.
func (m Mask) Allows(method string) bool {
	bit, ok := Lookup(method)
	return ok && m&bit != 0
}

func (m Mask) String() string {
	if m == None {
		return "NONE"
	}
	return strings.Join(m.Decode(), ",")
}
