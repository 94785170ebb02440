package stage

import (
	"context"
	"log/slog"

	"console-gateway/internal/apierror"
	"console-gateway/internal/credential"
	"console-gateway/internal/model"
)

// Navigator sends the console user to the login entry point.
type Navigator interface {
	NavigateToLogin(ctx context.Context, ce *apierror.ClassifiedError)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, ce *apierror.ClassifiedError)

func (f NavigatorFunc) NavigateToLogin(ctx context.Context, ce *apierror.ClassifiedError) {
	f(ctx, ce)
}

// Classifier turns failed calls into *apierror.ClassifiedError and runs the
// recovery side effects for each category.
type Classifier struct {
	store   credential.Store
	nav     Navigator
	observe func(*apierror.ClassifiedError)
	logger  *slog.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithObserver registers fn to see every classified error, e.g. for
// metrics.
func WithObserver(fn func(*apierror.ClassifiedError)) ClassifierOption {
	return func(c *Classifier) { c.observe = fn }
}

// NewClassifier creates a Classifier. store and nav may be nil.
func NewClassifier(store credential.Store, nav Navigator, logger *slog.Logger, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		store:  store,
		nav:    nav,
		logger: logger.With("component", "error_classifier"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BeforeSend consumes the skip-error-handling directive.
func (s *Classifier) BeforeSend(_ context.Context, req *model.RequestConfig) (*model.RequestConfig, error) {
	if _, ok := req.Header.Take(HeaderSkipErrorHandling); ok {
		setMeta(req, metaSkipErrorHandling, true)
	}
	return req, nil
}

// OnError classifies cause. Calls that opted out via skip-error-handling
// get their error back untouched.
func (s *Classifier) OnError(ctx context.Context, req *model.RequestConfig, cause error) (error, error) {
	if req != nil && req.Metadata.Bool(metaSkipErrorHandling) {
		return cause, nil
	}

	ce := apierror.Classify(cause, req)
	attrs := []any{
		"category", string(ce.Category),
		"status", ce.Status,
		"method", ce.Method,
		"url", ce.URL,
		"retryable", ce.Retryable,
		"correlation_id", ce.CorrelationID,
		"message", ce.Message,
	}

	switch ce.Category {
	case apierror.Authentication:
		s.logger.Warn("backend rejected credentials", attrs...)
		s.invalidate(ctx, ce)
	case apierror.Authorization:
		s.logger.Warn("backend denied access", attrs...)
	case apierror.Server:
		s.logger.Error("backend server error", attrs...)
	case apierror.Network:
		s.logger.Error("backend unreachable", attrs...)
	default:
		s.logger.Info("backend rejected request", attrs...)
	}

	if s.observe != nil {
		s.observe(ce)
	}
	return ce, nil
}

// invalidate clears the stored session and sends the user to login. A
// failed clear is logged; the classified error is still delivered.
func (s *Classifier) invalidate(ctx context.Context, ce *apierror.ClassifiedError) {
	if s.store != nil {
		if err := s.store.Clear(ctx); err != nil {
			s.logger.Error("clearing session token", "err", err, "correlation_id", ce.CorrelationID)
		}
	}
	if s.nav != nil {
		s.nav.NavigateToLogin(ctx, ce)
	}
}
