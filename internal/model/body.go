package model

import (
	"mime"
	"sort"
	"strings"
)

// BodyKind tags the variant held by a Body.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyStructured
	BodyBinary
)

func (k BodyKind) String() string {
	switch k {
	case BodyStructured:
		return "structured"
	case BodyBinary:
		return "binary"
	default:
		return "none"
	}
}

// Body is a request or response payload: nothing, a decoded JSON tree
// (map[string]any, []any and primitives), or opaque bytes such as a
// multipart form or a file download.
type Body struct {
	kind        BodyKind
	value       any
	raw         []byte
	contentType string
}

// NoBody is the empty payload.
var NoBody = Body{}

// StructuredBody wraps a JSON-shaped value.
func StructuredBody(v any) Body {
	return Body{kind: BodyStructured, value: v}
}

// BinaryBody wraps raw bytes with their content type.
func BinaryBody(b []byte, contentType string) Body {
	return Body{kind: BodyBinary, raw: b, contentType: contentType}
}

// Kind returns the variant tag.
func (b Body) Kind() BodyKind { return b.kind }

// IsStructured reports whether the body holds a JSON tree.
func (b Body) IsStructured() bool { return b.kind == BodyStructured }

// IsBinary reports whether the body holds opaque bytes.
func (b Body) IsBinary() bool { return b.kind == BodyBinary }

// Value returns the structured value, or nil for other kinds.
func (b Body) Value() any {
	if b.kind != BodyStructured {
		return nil
	}
	return b.value
}

// Bytes returns the raw payload, or nil for other kinds.
func (b Body) Bytes() []byte {
	if b.kind != BodyBinary {
		return nil
	}
	return b.raw
}

// ContentType returns the content type recorded for a binary body.
func (b Body) ContentType() string { return b.contentType }

// IsJSONContentType reports whether a Content-Type value names JSON,
// including vendor types such as application/problem+json.
func IsJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// IsMultipartContentType reports whether a Content-Type value is multipart.
func IsMultipartContentType(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "multipart/")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
