// Package service drives console calls through the stage pipeline to the
// backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"console-gateway/internal/apierror"
	"console-gateway/internal/config"
	"console-gateway/internal/credential"
	"console-gateway/internal/events"
	"console-gateway/internal/metrics"
	"console-gateway/internal/model"
	"console-gateway/internal/pipeline"
	"console-gateway/internal/stage"
)

// Backend sends a prepared request and returns the reply whatever its
// status. *client.BackendClient implements it.
type Backend interface {
	Do(ctx context.Context, req *model.RequestConfig) (*model.ResponseEnvelope, error)
}

// ConsoleService is the API client the console talks through.
type ConsoleService struct {
	pipeline *pipeline.Pipeline
	backend  Backend
	tracker  *stage.Tracker
	notifier *stage.Notifier
	store    credential.Store
	logger   *slog.Logger

	disposers []func()
}

// NewConsoleService builds the standard pipeline from cfg and bridges its
// loading and notification state to hub and m. hub and m may be nil.
func NewConsoleService(cfg *config.Config, backend Backend, store credential.Store, hub *events.Hub, m *metrics.Metrics, logger *slog.Logger) *ConsoleService {
	s := &ConsoleService{
		pipeline: pipeline.New(logger),
		backend:  backend,
		tracker:  stage.NewTracker(),
		notifier: stage.NewNotifier(),
		store:    store,
		logger:   logger.With("component", "console_service"),
	}

	var nav stage.Navigator
	if hub != nil {
		nav = loginNavigator{hub: hub, loginPath: cfg.Pipeline.LoginPath}
		s.disposers = append(s.disposers,
			s.tracker.Subscribe(func(active bool) {
				hub.Publish(events.EventLoading, loadingState{Active: active})
			}),
			s.notifier.Subscribe(func(n stage.Notification) {
				hub.Publish(events.EventNotification, n)
			}),
		)
	}

	var observe func(*apierror.ClassifiedError)
	if m != nil {
		m.RegisterLoadingGauge(func() float64 { return float64(s.tracker.InFlight()) })
		observe = func(ce *apierror.ClassifiedError) {
			m.ClassifiedErrors.WithLabelValues(string(ce.Category), strconv.FormatBool(ce.Retryable)).Inc()
		}
		s.disposers = append(s.disposers, s.notifier.Subscribe(func(n stage.Notification) {
			m.Notifications.WithLabelValues(string(n.Type)).Inc()
		}))
	}

	s.pipeline.MustUse(stage.Defaults(stage.Config{
		CaseTransform: stage.Governance{
			Prefixes: cfg.Pipeline.GovernedPaths,
			Excluded: cfg.Pipeline.CaseTransformExclude,
		},
		Auth: stage.AuthOptions{
			Governance:         stage.Governance{Prefixes: cfg.Pipeline.GovernedPaths},
			APIKey:             cfg.Backend.APIKey,
			APIKeyHeader:       cfg.Pipeline.APIKeyHeader,
			SessionTokenHeader: cfg.Pipeline.SessionTokenHeader,
		},
		Store:        store,
		Tracker:      s.tracker,
		Notifier:     s.notifier,
		Navigator:    nav,
		OnClassified: observe,
		Logger:       logger,
	})...)

	return s
}

// Send runs req through the pipeline and the backend. Non-2xx replies and
// transport failures come back classified by the on-error stages; a
// before-send or after-receive failure is returned unclassified as a
// *pipeline.StageError.
func (s *ConsoleService) Send(ctx context.Context, req *model.RequestConfig) (*model.ResponseEnvelope, error) {
	req.EnsureCorrelationID(uuid.NewString)

	prepared, err := s.pipeline.RunBeforeSend(ctx, req)
	if err != nil {
		s.logger.Error("request stage failed",
			"err", err,
			"correlation_id", req.CorrelationID(),
		)
		return nil, err
	}

	env, err := s.backend.Do(ctx, prepared)
	if err != nil {
		var te *apierror.TransportError
		if !errors.As(err, &te) {
			err = &apierror.TransportError{Request: prepared, Err: err}
		}
		return nil, s.pipeline.RunOnError(ctx, err, prepared)
	}
	if env.Request == nil {
		env.Request = prepared
	}

	if !env.OK() {
		return nil, s.pipeline.RunOnError(ctx, &apierror.StatusError{Response: env}, prepared)
	}

	out, err := s.pipeline.RunAfterReceive(ctx, env)
	if err != nil {
		s.logger.Error("response stage failed",
			"err", err,
			"correlation_id", prepared.CorrelationID(),
		)
		return nil, err
	}
	return out, nil
}

// Pipeline returns the stage pipeline so callers can inspect or extend it.
func (s *ConsoleService) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Tracker returns the loading tracker.
func (s *ConsoleService) Tracker() *stage.Tracker { return s.tracker }

// Notifier returns the notification fan-out.
func (s *ConsoleService) Notifier() *stage.Notifier { return s.notifier }

// SetSessionToken stores the token attached to later calls.
func (s *ConsoleService) SetSessionToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.store.SetToken(ctx, token); err != nil {
		return fmt.Errorf("store session token: %w", err)
	}
	s.logger.Info("session token stored")
	return nil
}

// ClearSession drops the stored session token.
func (s *ConsoleService) ClearSession(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	s.logger.Info("session token cleared")
	return nil
}

// HasSession reports whether a session token is stored.
func (s *ConsoleService) HasSession(ctx context.Context) bool {
	_, ok, err := s.store.Token(ctx)
	return err == nil && ok
}

// Close detaches the event and metric bridges.
func (s *ConsoleService) Close() {
	for _, dispose := range s.disposers {
		dispose()
	}
	s.disposers = nil
}

// ErrEmptyToken is returned when a session token is blank.
var ErrEmptyToken = errors.New("session token is empty")

type loadingState struct {
	Active bool `json:"active"`
}

type navigation struct {
	To            string `json:"to"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// loginNavigator tells connected consoles to route to the login page.
type loginNavigator struct {
	hub       *events.Hub
	loginPath string
}

func (n loginNavigator) NavigateToLogin(_ context.Context, ce *apierror.ClassifiedError) {
	n.hub.Publish(events.EventNavigate, navigation{
		To:            n.loginPath,
		Reason:        ce.Message,
		CorrelationID: ce.CorrelationID,
	})
}

// NewStore returns the credential store selected by cfg.
func NewStore(cfg *config.Config) (credential.Store, error) {
	if cfg.Credentials.Store == "memory" {
		return credential.NewMemoryStore(""), nil
	}
	path := cfg.Credentials.Path
	if path == "" {
		p, err := credential.DefaultFilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return credential.NewFileStore(path), nil
}
