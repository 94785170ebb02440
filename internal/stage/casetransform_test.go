package stage

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"console-gateway/internal/model"
)

var testCaseGov = Governance{
	Prefixes: []string{"/api/v2"},
	Excluded: []string{"/api/v2/user/session", "/api/v2/system/admin/session"},
}

func TestGovernance_Governs(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/v2/system/service", true},
		{"/api/v2", true},
		{"/api/v2/user/session", false},
		{"/api/v2/user/session/extra", false},
		{"/api/v2/user/sessions", true},
		{"/api/v20/x", false},
		{"/api/v1/system", false},
		{"/healthz", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, testCaseGov.Governs(tt.path))
		})
	}
}

func TestCaseTransform_BeforeSend_GovernedPath(t *testing.T) {
	s := NewCaseTransform(testCaseGov)
	req := model.NewRequest(http.MethodPost, "/api/v2/system/service", model.StructuredBody(map[string]any{"serviceName": "db1"}))

	out, err := s.BeforeSend(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"service_name": "db1"}, out.Body.Value())
}

func TestCaseTransform_BeforeSend_ExcludedPath(t *testing.T) {
	s := NewCaseTransform(testCaseGov)
	body := map[string]any{"login": "a@b.com", "isSysAdmin": true}
	req := model.NewRequest(http.MethodPost, "/api/v2/user/session", model.StructuredBody(body))

	out, err := s.BeforeSend(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, body, out.Body.Value())
}

func TestCaseTransform_BeforeSend_SkipDirectiveConsumed(t *testing.T) {
	s := NewCaseTransform(testCaseGov)
	body := map[string]any{"serviceName": "db1"}
	req := model.NewRequest(http.MethodPost, "/api/v2/system/service", model.StructuredBody(body))
	req.Header.Set("Skip-Case-Transform", "true")

	out, err := s.BeforeSend(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, body, out.Body.Value())
	assert.False(t, out.Header.Has(HeaderSkipCaseTransform))
}

func TestCaseTransform_BeforeSend_SkipDirectiveConsumedOffPath(t *testing.T) {
	s := NewCaseTransform(testCaseGov)
	req := model.NewRequest(http.MethodGet, "/elsewhere", model.NoBody)
	req.Header.Set(HeaderSkipCaseTransform, "")

	out, err := s.BeforeSend(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, out.Header.Has(HeaderSkipCaseTransform))
}

func TestCaseTransform_BeforeSend_BinaryUntouched(t *testing.T) {
	s := NewCaseTransform(testCaseGov)
	payload := []byte("--x\r\nContent-Disposition: form-data; name=\"fileName\"\r\n\r\na\r\n--x--")
	req := model.NewRequest(http.MethodPost, "/api/v2/files/", model.BinaryBody(payload, "multipart/form-data; boundary=x"))

	out, err := s.BeforeSend(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, payload, out.Body.Bytes())
}

func TestCaseTransform_BeforeSend_MultipartHeaderUntouched(t *testing.T) {
	s := NewCaseTransform(testCaseGov)
	body := map[string]any{"fileName": "a"}
	req := model.NewRequest(http.MethodPost, "/api/v2/files/", model.StructuredBody(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	out, err := s.BeforeSend(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, body, out.Body.Value())
}

func TestCaseTransform_AfterReceive(t *testing.T) {
	s := NewCaseTransform(testCaseGov)

	tests := []struct {
		name string
		url  string
		ct   string
		skip bool
		body any
		want any
	}{
		{
			name: "json on governed path",
			url:  "/api/v2/system/service",
			ct:   "application/json",
			body: map[string]any{"resource": []any{map[string]any{"service_name": "db1"}}},
			want: map[string]any{"resource": []any{map[string]any{"serviceName": "db1"}}},
		},
		{
			name: "non-json content type",
			url:  "/api/v2/system/service",
			ct:   "text/plain",
			body: map[string]any{"service_name": "db1"},
			want: map[string]any{"service_name": "db1"},
		},
		{
			name: "excluded path",
			url:  "/api/v2/user/session",
			ct:   "application/json",
			body: map[string]any{"session_token": "t"},
			want: map[string]any{"session_token": "t"},
		},
		{
			name: "skip directive",
			url:  "/api/v2/system/service",
			ct:   "application/json",
			skip: true,
			body: map[string]any{"service_name": "db1"},
			want: map[string]any{"service_name": "db1"},
		},
		{
			name: "primitive body",
			url:  "/api/v2/system/service",
			ct:   "application/json",
			body: "ok",
			want: "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := model.NewRequest(http.MethodGet, tt.url, model.NoBody)
			if tt.skip {
				req.Header.Set(HeaderSkipCaseTransform, "1")
				_, err := s.BeforeSend(context.Background(), req)
				require.NoError(t, err)
			}
			env := &model.ResponseEnvelope{
				Request: req,
				Status:  http.StatusOK,
				Header:  model.NewHeader("Content-Type", tt.ct),
				Body:    model.StructuredBody(tt.body),
			}

			out, err := s.AfterReceive(context.Background(), env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Body.Value())
		})
	}
}

func TestCaseTransform_AfterReceive_DoesNotMutateInput(t *testing.T) {
	s := NewCaseTransform(testCaseGov)
	body := map[string]any{"service_name": "db1"}
	env := &model.ResponseEnvelope{
		Request: model.NewRequest(http.MethodGet, "/api/v2/system/service", model.NoBody),
		Status:  http.StatusOK,
		Header:  model.NewHeader("Content-Type", "application/json"),
		Body:    model.StructuredBody(body),
	}

	out, err := s.AfterReceive(context.Background(), env)
	require.NoError(t, err)
	assert.NotSame(t, env, out)
	assert.Equal(t, map[string]any{"service_name": "db1"}, env.Body.Value())
}
