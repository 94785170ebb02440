package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"console-gateway/internal/apierror"
	"console-gateway/internal/config"
	"console-gateway/internal/middleware"
	"console-gateway/internal/model"
	"console-gateway/internal/pipeline"
	"console-gateway/internal/service"
	"console-gateway/internal/verbs"
)

// credentialPattern matches credential query parameters in URLs embedded in error messages.
var credentialPattern = regexp.MustCompile(`(?i)((?:api_?key|session_?token)=)[^&\s"]+`)

// ProxyHandler forwards console API calls through the stage pipeline.
type ProxyHandler struct {
	service   *service.ConsoleService
	allowed   verbs.Mask
	loginPath string
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ConsoleService, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service:   svc,
		allowed:   cfg.Gateway.AllowedMask(),
		loginPath: cfg.Pipeline.LoginPath,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// errorBody is the JSON shape of a failed call.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Category      string `json:"category,omitempty"`
	Message       string `json:"message"`
	Status        int    `json:"status,omitempty"`
	Retryable     bool   `json:"retryable"`
	CorrelationID string `json:"correlationId,omitempty"`
	Login         string `json:"login,omitempty"`
}

// Handle decodes the browser call, sends it through the pipeline and
// writes the transformed reply.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if !h.allowed.Allows(req.Method) {
		c.Response().Header().Set(echo.HeaderAllow, strings.Join(h.allowed.Decode(), ", "))
		return c.JSON(http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
			Message: fmt.Sprintf("method %s is not allowed by this gateway", req.Method),
		}})
	}

	body, err := decodeBody(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: errorDetail{Message: err.Error()}})
	}

	env, err := h.service.Forward(req.Context(), &service.Inbound{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.Query(),
		Header: req.Header,
		Body:   body,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	return h.writeEnvelope(c, env)
}

// decodeBody reads the request body as JSON when the content type says so
// and keeps it as bytes otherwise.
func decodeBody(req *http.Request) (model.Body, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return model.NoBody, nil
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return model.NoBody, fmt.Errorf("read request body: %w", err)
	}
	if len(raw) == 0 {
		return model.NoBody, nil
	}

	ct := req.Header.Get(echo.HeaderContentType)
	if !model.IsJSONContentType(ct) {
		return model.BinaryBody(raw, ct), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return model.NoBody, fmt.Errorf("request body is not valid JSON: %w", err)
	}
	return model.StructuredBody(v), nil
}

func (h *ProxyHandler) writeEnvelope(c echo.Context, env *model.ResponseEnvelope) error {
	for key, vals := range service.ResponseHeaders(env) {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	if env.Request != nil {
		setCorrelationID(c, env.Request.CorrelationID())
	}

	switch {
	case env.Status == http.StatusNoContent || env.Status == http.StatusNotModified:
		return c.NoContent(env.Status)
	case env.Body.IsStructured():
		// Drop the backend's Content-Type; the body is re-encoded.
		c.Response().Header().Del(echo.HeaderContentType)
		return c.JSON(env.Status, env.Body.Value())
	case env.Body.IsBinary():
		ct := env.Body.ContentType()
		if ct == "" {
			ct = echo.MIMEOctetStream
		}
		c.Response().Header().Del(echo.HeaderContentType)
		return c.Blob(env.Status, ct, env.Body.Bytes())
	default:
		return c.NoContent(env.Status)
	}
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	// Calls that skipped error handling get the backend's reply as-is.
	var se *apierror.StatusError
	if errors.As(err, &se) && apierror.CategoryOf(err) == "" {
		return h.writeEnvelope(c, se.Response)
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) && apierror.CategoryOf(err) == "" {
		h.logger.Error("pipeline rejected request",
			"err", sanitizeError(err),
			"stage", stageErr.ID,
			"path", path,
		)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: errorDetail{
			Message: "request rejected by gateway",
		}})
	}

	ce := apierror.Classify(err, nil)
	setCorrelationID(c, ce.CorrelationID)
	h.logger.Debug("backend call failed",
		"err", sanitizeError(err),
		"category", string(ce.Category),
		"path", path,
	)

	detail := errorDetail{
		Category:      string(ce.Category),
		Message:       sanitizeMessage(ce.Message),
		Status:        ce.Status,
		Retryable:     ce.Retryable,
		CorrelationID: ce.CorrelationID,
	}
	if ce.Category == apierror.Authentication {
		detail.Login = h.loginPath
	}
	return c.JSON(statusFor(ce), errorBody{Error: detail})
}

func setCorrelationID(c echo.Context, id string) {
	if id != "" {
		c.Response().Header().Set(middleware.HeaderCorrelationID, id)
	}
}

// statusFor picks the gateway status for a classified error: the backend's
// own status when there was a reply, 504 for timeouts, 502 otherwise.
func statusFor(ce *apierror.ClassifiedError) int {
	if ce.Status != 0 {
		return ce.Status
	}
	if isTimeout(ce.Cause) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// sanitizeError redacts credentials from error messages that may contain backend URLs.
func sanitizeError(err error) string {
	return sanitizeMessage(err.Error())
}

func sanitizeMessage(s string) string {
	return credentialPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
