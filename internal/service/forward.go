package service

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"console-gateway/internal/model"
	"console-gateway/internal/stage"
)

// forwardableRequestHeaders are the browser headers passed to the pipeline.
// Directive headers are added separately.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"If-None-Match",
	"If-Modified-Since",
}

// forwardableResponseHeaders are the backend headers returned to the browser.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":        true,
	"Content-Disposition": true,
	"Cache-Control":       true,
	"Etag":                true,
	"Last-Modified":       true,
	"Date":                true,
	"X-Request-Id":        true,
}

// credentialQueryParams are stripped from inbound URLs; the gateway owns the
// credentials sent to the backend.
var credentialQueryParams = map[string]bool{
	"apikey":        true,
	"api_key":       true,
	"session_token": true,
	"sessiontoken":  true,
}

const userAgent = "console-gateway/1.0"

// Inbound is a browser call as received by the gateway.
type Inbound struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   model.Body
}

// Forward turns an inbound call into a pipeline request and sends it.
func (s *ConsoleService) Forward(ctx context.Context, in *Inbound) (*model.ResponseEnvelope, error) {
	req := model.NewRequest(in.Method, buildBackendURL(in.Path, in.Query), in.Body)
	req.Header = filterRequestHeaders(in.Header)

	s.logger.Debug("forwarding request",
		"method", req.Method,
		"path", in.Path,
	)
	return s.Send(ctx, req)
}

// ResponseHeaders returns the reply headers safe to pass to the browser.
func ResponseHeaders(env *model.ResponseEnvelope) http.Header {
	return filterResponseHeaders(env.Header.HTTP())
}

func buildBackendURL(path string, query url.Values) string {
	q := make(url.Values)
	for k, v := range query {
		if credentialQueryParams[strings.ToLower(k)] {
			continue
		}
		q[k] = v
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func filterRequestHeaders(src http.Header) model.Header {
	var dst model.Header
	for _, key := range forwardableRequestHeaders {
		for _, v := range src.Values(key) {
			dst.Add(key, v)
		}
	}
	for _, key := range stage.Directives {
		if vals := src.Values(key); len(vals) > 0 {
			dst.Set(key, vals[0])
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
