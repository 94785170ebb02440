package stage

import (
	"context"

	"console-gateway/internal/caseconv"
	"console-gateway/internal/model"
)

// CaseTransform rewrites structured bodies between the console's camelCase
// and the backend's snake_case on governed paths.
type CaseTransform struct {
	gov Governance
}

// NewCaseTransform creates a CaseTransform for the given paths.
func NewCaseTransform(gov Governance) *CaseTransform {
	return &CaseTransform{gov: gov}
}

// BeforeSend consumes the skip directive and converts the request body to
// snake_case. Binary and multipart payloads are never touched.
func (s *CaseTransform) BeforeSend(_ context.Context, req *model.RequestConfig) (*model.RequestConfig, error) {
	if _, skip := req.Header.Take(HeaderSkipCaseTransform); skip {
		setMeta(req, metaSkipCaseTransform, true)
		return req, nil
	}
	if !s.gov.Governs(req.Path()) || !req.Body.IsStructured() {
		return req, nil
	}
	if model.IsMultipartContentType(req.Header.Get("Content-Type")) {
		return req, nil
	}

	req.Body = model.StructuredBody(caseconv.ToWire(req.Body.Value()))
	return req, nil
}

// AfterReceive converts JSON replies back to camelCase.
func (s *CaseTransform) AfterReceive(_ context.Context, env *model.ResponseEnvelope) (*model.ResponseEnvelope, error) {
	req := env.Request
	if req == nil || req.Metadata.Bool(metaSkipCaseTransform) || !s.gov.Governs(req.Path()) {
		return env, nil
	}
	if !env.Body.IsStructured() || !model.IsJSONContentType(env.Header.Get("Content-Type")) {
		return env, nil
	}

	return env.WithBody(model.StructuredBody(caseconv.FromWire(env.Body.Value()))), nil
}
