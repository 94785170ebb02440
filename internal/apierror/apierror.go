// Package apierror defines the classified error taxonomy for failed backend
// calls.
package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"console-gateway/internal/model"
)

// Category is the taxonomy tag of a ClassifiedError.
type Category string

const (
	Authentication Category = "authentication"
	Authorization  Category = "authorization"
	Network        Category = "network"
	Server         Category = "server"
	Client         Category = "client"
)

// Severity grades how loudly a failure should be surfaced.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// ClassifiedError is the typed result of mapping a failed exchange. It is
// never mutated after creation.
type ClassifiedError struct {
	Category      Category
	Message       string
	Severity      Severity
	Retryable     bool
	Status        int // 0 for network failures
	Method        string
	URL           string
	CorrelationID string
	Cause         error
}

func (e *ClassifiedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error: %s %s: %d: %s", e.Category, e.Method, e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s %s: %s", e.Category, e.Method, e.URL, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Cause }

// Is matches another *ClassifiedError by category, so callers can write
// errors.Is(err, apierror.ErrAuthentication).
func (e *ClassifiedError) Is(target error) bool {
	t, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Category == e.Category
}

// Category sentinels for errors.Is.
var (
	ErrAuthentication = &ClassifiedError{Category: Authentication}
	ErrAuthorization  = &ClassifiedError{Category: Authorization}
	ErrNetwork        = &ClassifiedError{Category: Network}
	ErrServer         = &ClassifiedError{Category: Server}
	ErrClient         = &ClassifiedError{Category: Client}
)

// StatusError carries a non-2xx reply through the error path before it is
// classified.
type StatusError struct {
	Response *model.ResponseEnvelope
}

func (e *StatusError) Error() string {
	req := e.Response.Request
	if req == nil {
		return fmt.Sprintf("backend replied %d", e.Response.Status)
	}
	return fmt.Sprintf("backend replied %d to %s %s", e.Response.Status, req.Method, req.URL)
}

// TransportError is a failure with no reply at all: connection refused,
// timeout, cancellation.
type TransportError struct {
	Request *model.RequestConfig
	Err     error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Classify maps err to a ClassifiedError. A *ClassifiedError is returned
// as-is. Status codes are checked in order: 401, 403, >=500, other.
// Anything without a reply is a network failure.
func Classify(err error, req *model.RequestConfig) *ClassifiedError {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	base := ClassifiedError{Cause: err}
	if req != nil {
		base.Method = req.Method
		base.URL = req.URL
		base.CorrelationID = req.CorrelationID()
	}

	var se *StatusError
	if errors.As(err, &se) {
		base.Status = se.Response.Status
		base.Message = replyMessage(se.Response)
		switch {
		case se.Response.Status == http.StatusUnauthorized:
			base.Category = Authentication
			base.Severity = SeverityHigh
		case se.Response.Status == http.StatusForbidden:
			base.Category = Authorization
			base.Severity = SeverityHigh
		case se.Response.Status >= http.StatusInternalServerError:
			base.Category = Server
			base.Severity = SeverityHigh
			base.Retryable = true
		default:
			base.Category = Client
			base.Severity = SeverityMedium
		}
		return &base
	}

	base.Category = Network
	base.Severity = SeverityMedium
	base.Retryable = true
	base.Message = err.Error()
	return &base
}

// replyMessage extracts a human-readable message from an error reply. The
// backend nests it as {"error": {"message": "..."}}; a flat {"message": ...}
// and a bare string are accepted too.
func replyMessage(env *model.ResponseEnvelope) string {
	if v, ok := env.Body.Value().(map[string]any); ok {
		if inner, ok := v["error"].(map[string]any); ok {
			if msg, ok := inner["message"].(string); ok && msg != "" {
				return msg
			}
		}
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if s, ok := env.Body.Value().(string); ok && s != "" {
		return s
	}
	if text := http.StatusText(env.Status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", env.Status)
}

// IsRetryable reports whether err is a classified error marked retryable.
func IsRetryable(err error) bool {
	var ce *ClassifiedError
	return errors.As(err, &ce) && ce.Retryable
}

// CategoryOf returns the category of a classified error, or "" otherwise.
func CategoryOf(err error) Category {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}
