package model

import (
	"net/http"
	"strings"
)

type headerEntry struct {
	name   string
	values []string
}

// Header is a case-insensitive multi-map that preserves the order in which
// names were first added. The zero value is an empty header ready to use.
type Header struct {
	entries []headerEntry
}

// NewHeader builds a Header from name/value pairs. A trailing name without a
// value is ignored.
func NewHeader(pairs ...string) Header {
	var h Header
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// HeaderFromHTTP copies an http.Header. Names are visited in sorted order
// since http.Header has no order of its own.
func HeaderFromHTTP(src http.Header) Header {
	var h Header
	for _, name := range sortedKeys(src) {
		for _, v := range src[name] {
			h.Add(name, v)
		}
	}
	return h
}

func (h *Header) index(name string) int {
	for i, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return i
		}
	}
	return -1
}

// Get returns the first value for name, or "" if absent.
func (h Header) Get(name string) string {
	if i := h.index(name); i >= 0 && len(h.entries[i].values) > 0 {
		return h.entries[i].values[0]
	}
	return ""
}

// Values returns all values for name.
func (h Header) Values(name string) []string {
	if i := h.index(name); i >= 0 {
		return append([]string(nil), h.entries[i].values...)
	}
	return nil
}

// Has reports whether name is present, even with an empty value.
func (h Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Set replaces any values for name. The original position is kept when the
// name already exists.
func (h *Header) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.entries[i].values = []string{value}
		return
	}
	h.entries = append(h.entries, headerEntry{name: name, values: []string{value}})
}

// Add appends value to name.
func (h *Header) Add(name, value string) {
	if i := h.index(name); i >= 0 {
		h.entries[i].values = append(h.entries[i].values, value)
		return
	}
	h.entries = append(h.entries, headerEntry{name: name, values: []string{value}})
}

// Del removes name.
func (h *Header) Del(name string) {
	if i := h.index(name); i >= 0 {
		h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
	}
}

// Take returns the first value for name and removes it. The second result
// reports whether the name was present.
func (h *Header) Take(name string) (string, bool) {
	i := h.index(name)
	if i < 0 {
		return "", false
	}
	var v string
	if len(h.entries[i].values) > 0 {
		v = h.entries[i].values[0]
	}
	h.Del(name)
	return v, true
}

// Keys returns header names in insertion order, as first written.
func (h Header) Keys() []string {
	keys := make([]string, len(h.entries))
	for i, e := range h.entries {
		keys[i] = e.name
	}
	return keys
}

// Len returns the number of distinct names.
func (h Header) Len() int {
	return len(h.entries)
}

// Clone returns a deep copy.
func (h Header) Clone() Header {
	if h.entries == nil {
		return Header{}
	}
	out := Header{entries: make([]headerEntry, len(h.entries))}
	for i, e := range h.entries {
		out.entries[i] = headerEntry{name: e.name, values: append([]string(nil), e.values...)}
	}
	return out
}

// HTTP exports the header as an http.Header with canonicalized names.
func (h Header) HTTP() http.Header {
	dst := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		key := http.CanonicalHeaderKey(e.name)
		dst[key] = append(dst[key], e.values...)
	}
	return dst
}
