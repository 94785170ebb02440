// Package stage implements the gateway's pipeline stages: case transform,
// authentication, loading state, notifications and error classification.
package stage

import (
	"strings"

	"console-gateway/internal/model"
)

// Directive headers. They steer stages and are always stripped before the
// request reaches the network.
const (
	HeaderSkipCaseTransform = "skip-case-transform"
	HeaderSkipAuth          = "skip-auth"
	HeaderSkipErrorHandling = "skip-error-handling"
	HeaderShowLoading       = "show-loading"
	HeaderNotifySuccess     = "notify-success"
	HeaderNotifyError       = "notify-error"
)

// NotifyErrorFromCause as the notify-error value means "report the
// underlying error's own message".
const NotifyErrorFromCause = "server"

// Directives lists every directive header.
var Directives = []string{
	HeaderSkipCaseTransform,
	HeaderSkipAuth,
	HeaderSkipErrorHandling,
	HeaderShowLoading,
	HeaderNotifySuccess,
	HeaderNotifyError,
}

// Metadata keys written by stages.
const (
	metaSkipCaseTransform = "skipCaseTransform"
	metaSkipErrorHandling = "skipErrorHandling"
	metaLoadingID         = "loadingId"
	metaNotifySuccess     = "notifySuccess"
	metaNotifyError       = "notifyError"
)

// Governance decides which URL paths a stage applies to. A path is governed
// when it falls under one of Prefixes and under none of Excluded. Matching
// is on whole path segments.
type Governance struct {
	Prefixes []string
	Excluded []string
}

// Governs reports whether path is subject to the stage.
func (g Governance) Governs(path string) bool {
	matched := false
	for _, p := range g.Prefixes {
		if underPrefix(path, p) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, p := range g.Excluded {
		if underPrefix(path, p) {
			return false
		}
	}
	return true
}

func underPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func setMeta(req *model.RequestConfig, key string, v any) {
	if req.Metadata == nil {
		req.Metadata = model.Metadata{}
	}
	req.Metadata[key] = v
}
