// Package model defines the request and response values that flow through
// the gateway pipeline.
package model

import (
	"net/url"
	"strings"
)

// Well-known metadata keys.
const (
	MetaCorrelationID = "correlationId"
)

// Metadata is the per-call bag stages use to hand state to later phases.
type Metadata map[string]any

// CorrelationID returns the id assigned to the call, if any.
func (m Metadata) CorrelationID() string {
	s, _ := m[MetaCorrelationID].(string)
	return s
}

// String returns the string stored under key.
func (m Metadata) String(key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Bool returns the bool stored under key, false when absent.
func (m Metadata) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RequestConfig describes one outgoing call. Stages mutate it only during
// the before-send phase.
type RequestConfig struct {
	URL      string
	Method   string
	Header   Header
	Body     Body
	Metadata Metadata
}

// NewRequest returns a RequestConfig with an empty metadata bag.
func NewRequest(method, rawURL string, body Body) *RequestConfig {
	return &RequestConfig{
		URL:      rawURL,
		Method:   strings.ToUpper(method),
		Body:     body,
		Metadata: Metadata{},
	}
}

// Clone returns a copy whose header and metadata can be changed without
// affecting r. Structured body values are shared.
func (r *RequestConfig) Clone() *RequestConfig {
	out := *r
	out.Header = r.Header.Clone()
	if r.Metadata != nil {
		out.Metadata = r.Metadata.Clone()
	} else {
		out.Metadata = Metadata{}
	}
	return &out
}

// Path returns the path component of URL, or URL itself when it does not
// parse.
func (r *RequestConfig) Path() string {
	u, err := url.Parse(r.URL)
	if err != nil || u.Path == "" {
		if i := strings.IndexAny(r.URL, "?#"); i >= 0 {
			return r.URL[:i]
		}
		return r.URL
	}
	return u.Path
}

// CorrelationID returns the id recorded in metadata, or "".
func (r *RequestConfig) CorrelationID() string {
	if r == nil {
		return ""
	}
	return r.Metadata.CorrelationID()
}

// EnsureCorrelationID assigns id unless the call already has one, and
// returns the id in effect.
func (r *RequestConfig) EnsureCorrelationID(newID func() string) string {
	if r.Metadata == nil {
		r.Metadata = Metadata{}
	}
	if id := r.Metadata.CorrelationID(); id != "" {
		return id
	}
	id := newID()
	r.Metadata[MetaCorrelationID] = id
	return id
}

// ResponseEnvelope is a completed call. Envelopes are treated as immutable:
// the With helpers return modified copies.
type ResponseEnvelope struct {
	Request *RequestConfig
	Status  int
	Header  Header
	Body    Body
}

// WithBody returns a copy of e carrying body.
func (e *ResponseEnvelope) WithBody(body Body) *ResponseEnvelope {
	out := *e
	out.Header = e.Header.Clone()
	out.Body = body
	return &out
}

// WithHeader returns a copy of e carrying header.
func (e *ResponseEnvelope) WithHeader(h Header) *ResponseEnvelope {
	out := *e
	out.Header = h.Clone()
	return &out
}

// OK reports whether the status is 2xx.
func (e *ResponseEnvelope) OK() bool {
	return e.Status >= 200 && e.Status < 300
}
