package stage

import (
	"context"
	"log/slog"

	"console-gateway/internal/credential"
	"console-gateway/internal/model"
)

// Default credential header names understood by the backend.
const (
	DefaultAPIKeyHeader       = "X-DreamFactory-API-Key"
	DefaultSessionTokenHeader = "X-DreamFactory-Session-Token"
)

// AuthOptions configures the Auth stage.
type AuthOptions struct {
	Governance         Governance
	APIKey             string
	APIKeyHeader       string
	SessionTokenHeader string
}

// Auth attaches the API key and the current session token.
type Auth struct {
	opts   AuthOptions
	store  credential.Store
	logger *slog.Logger
}

// NewAuth creates an Auth stage. Empty header names fall back to the
// defaults.
func NewAuth(opts AuthOptions, store credential.Store, logger *slog.Logger) *Auth {
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = DefaultAPIKeyHeader
	}
	if opts.SessionTokenHeader == "" {
		opts.SessionTokenHeader = DefaultSessionTokenHeader
	}
	return &Auth{
		opts:   opts,
		store:  store,
		logger: logger.With("component", "auth_stage"),
	}
}

// BeforeSend consumes the skip directive and sets the credential headers
// on governed paths. A missing or unreadable token leaves the request
// unauthenticated.
func (s *Auth) BeforeSend(ctx context.Context, req *model.RequestConfig) (*model.RequestConfig, error) {
	if _, skip := req.Header.Take(HeaderSkipAuth); skip {
		return req, nil
	}
	if !s.opts.Governance.Governs(req.Path()) {
		return req, nil
	}

	if s.opts.APIKey != "" {
		req.Header.Set(s.opts.APIKeyHeader, s.opts.APIKey)
	}

	if s.store == nil {
		return req, nil
	}
	token, ok, err := s.store.Token(ctx)
	if err != nil {
		s.logger.Warn("reading session token",
			"err", err,
			"correlation_id", req.CorrelationID(),
		)
		return req, nil
	}
	if ok {
		req.Header.Set(s.opts.SessionTokenHeader, token)
	}
	return req, nil
}
