// Package client provides the HTTP client for the REST backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"console-gateway/internal/apierror"
	"console-gateway/internal/config"
	"console-gateway/internal/metrics"
	"console-gateway/internal/model"
)

// ErrReplyTooLarge is returned when a backend reply exceeds the configured
// backend.max_reply_bytes.
var ErrReplyTooLarge = errors.New("backend reply too large")

// BackendClient executes pipeline requests against the backend.
type BackendClient struct {
	httpClient *http.Client
	baseURL    string
	maxBody    int64
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable backend metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Backend.IdleConnections,
		MaxIdleConnsPerHost: cfg.Backend.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		},
		baseURL: strings.TrimSuffix(cfg.Backend.BaseURL, "/"),
		maxBody: cfg.Backend.MaxReplyBytes,
		logger:  logger.With("component", "backend_client"),
		metrics: m,
	}
}

// Do sends req and returns the reply whatever its status. Failures without a
// reply come back as *apierror.TransportError.
// The provided context controls the lifetime of the backend request.
func (c *BackendClient) Do(ctx context.Context, req *model.RequestConfig) (*model.ResponseEnvelope, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("backend request",
		"method", httpReq.Method,
		"path", httpReq.URL.Path,
		"correlation_id", req.CorrelationID(),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(httpReq.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
	}

	if err != nil {
		return nil, &apierror.TransportError{Request: req, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, &apierror.TransportError{Request: req, Err: err}
	}

	return &model.ResponseEnvelope{
		Request: req,
		Status:  resp.StatusCode,
		Header:  model.HeaderFromHTTP(resp.Header),
		Body:    body,
	}, nil
}

// build turns req into an *http.Request. Relative URLs are joined to the
// backend base URL; absolute ones are used as given.
func (c *BackendClient) build(ctx context.Context, req *model.RequestConfig) (*http.Request, error) {
	target := req.URL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		target = c.baseURL + target
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch req.Body.Kind() {
	case model.BodyStructured:
		raw, err := json.Marshal(req.Body.Value())
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	case model.BodyBinary:
		reader = bytes.NewReader(req.Body.Bytes())
		contentType = req.Body.ContentType()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	httpReq.Header = req.Header.HTTP()
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

// readBody decodes JSON replies into a structured body and keeps anything
// else as bytes. A JSON reply that fails to parse is kept as bytes too. A
// reply over the size limit is an error, never a cut-off body.
func (c *BackendClient) readBody(resp *http.Response) (model.Body, error) {
	var r io.Reader = resp.Body
	if c.maxBody > 0 {
		r = io.LimitReader(resp.Body, c.maxBody+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return model.NoBody, fmt.Errorf("read backend reply: %w", err)
	}
	if c.maxBody > 0 && int64(len(raw)) > c.maxBody {
		return model.NoBody, fmt.Errorf("%w: limit is %d bytes", ErrReplyTooLarge, c.maxBody)
	}
	if len(raw) == 0 {
		return model.NoBody, nil
	}

	ct := resp.Header.Get("Content-Type")
	if model.IsJSONContentType(ct) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			return model.StructuredBody(v), nil
		}
		c.logger.Warn("backend sent malformed JSON; passing bytes through",
			"status", resp.StatusCode,
		)
	}
	return model.BinaryBody(raw, ct), nil
}
