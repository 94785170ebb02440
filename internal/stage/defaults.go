package stage

import (
	"log/slog"

	"console-gateway/internal/apierror"
	"console-gateway/internal/credential"
	"console-gateway/internal/pipeline"
)

// Stage ids registered by Defaults.
const (
	IDLoadingRequest  = "loading.request"
	IDNotifyRequest   = "notify.request"
	IDErrorsRequest   = "errors.request"
	IDCaseRequest     = "case.request"
	IDAuthRequest     = "auth.request"
	IDCaseResponse    = "case.response"
	IDNotifyResponse  = "notify.response"
	IDLoadingResponse = "loading.response"
	IDErrorsClassify  = "errors.classify"
	IDNotifyError     = "notify.error"
	IDLoadingError    = "loading.error"
)

// Config bundles what the standard stages need.
type Config struct {
	// CaseTransform selects the paths whose bodies are rewritten.
	CaseTransform Governance
	Auth          AuthOptions
	Store         credential.Store
	Tracker       *Tracker
	Notifier      *Notifier
	Navigator     Navigator
	// OnClassified observes every classified error. Optional.
	OnClassified func(*apierror.ClassifiedError)
	Logger       *slog.Logger
}

// Defaults returns the standard descriptor set. Directive-consuming
// request stages run first so later stages see a clean header; on the
// error path classification runs before notification and loading cleanup.
func Defaults(cfg Config) []pipeline.Descriptor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewTracker()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NewNotifier()
	}

	var opts []ClassifierOption
	if cfg.OnClassified != nil {
		opts = append(opts, WithObserver(cfg.OnClassified))
	}

	loading := NewLoading(tracker)
	notify := NewNotify(notifier)
	classifier := NewClassifier(cfg.Store, cfg.Navigator, logger, opts...)
	caseTransform := NewCaseTransform(cfg.CaseTransform)
	auth := NewAuth(cfg.Auth, cfg.Store, logger)

	return []pipeline.Descriptor{
		pipeline.Request(IDLoadingRequest, 5, loading),
		pipeline.Request(IDNotifyRequest, 6, notify),
		pipeline.Request(IDErrorsRequest, 7, classifier),
		pipeline.Request(IDCaseRequest, 10, caseTransform),
		pipeline.Request(IDAuthRequest, 20, auth),

		pipeline.Response(IDCaseResponse, 10, caseTransform),
		pipeline.Response(IDNotifyResponse, 80, notify),
		pipeline.Response(IDLoadingResponse, 90, loading),

		pipeline.Error(IDErrorsClassify, 10, classifier),
		pipeline.Error(IDNotifyError, 80, notify),
		pipeline.Error(IDLoadingError, 90, loading),
	}
}
