package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"console-gateway/internal/apierror"
	"console-gateway/internal/client"
	"console-gateway/internal/config"
	"console-gateway/internal/credential"
	"console-gateway/internal/model"
	"console-gateway/internal/pipeline"
	"console-gateway/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{
			BaseURL:         baseURL,
			APIKey:          "app-key",
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Pipeline: config.PipelineConfig{
			GovernedPaths:        []string{"/api/v2"},
			CaseTransformExclude: []string{"/api/v2/user/session", "/api/v2/system/admin/session"},
			LoginPath:            "/login",
		},
	}
}

// newTestProxy builds a ProxyHandler in front of the given backend URL.
func newTestProxy(t *testing.T, cfg *config.Config, token string) (*ProxyHandler, *service.ConsoleService) {
	t.Helper()
	logger := discardLogger()
	svc := service.NewConsoleService(cfg, client.NewBackendClient(cfg, logger, nil), credential.NewMemoryStore(token), nil, nil, logger)
	t.Cleanup(svc.Close)
	return NewProxyHandler(svc, cfg, logger), svc
}

func serve(t *testing.T, h *ProxyHandler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v (body %s)", err, rec.Body.String())
	}
	return body.Error
}

func TestProxyHandler_Handle_GET(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-DreamFactory-API-Key") != "app-key" {
			t.Errorf("API key = %q, want %q", r.Header.Get("X-DreamFactory-API-Key"), "app-key")
		}
		if r.Header.Get("X-DreamFactory-Session-Token") != "sess" {
			t.Errorf("session token = %q, want %q", r.Header.Get("X-DreamFactory-Session-Token"), "sess")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Set-Cookie", "x=y")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"resource":[{"service_name":"db","is_active":true}]}`))
	}))
	defer upstream.Close()

	h, _ := newTestProxy(t, testConfig(upstream.URL), "sess")
	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/api/v2/system/service?fields=*", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Error("Set-Cookie should be stripped")
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q, want application/json", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Correlation-Id") == "" {
		t.Error("reply should carry the correlation id")
	}

	var body struct {
		Resource []map[string]any `json:"resource"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Resource) != 1 || body.Resource[0]["serviceName"] != "db" || body.Resource[0]["isActive"] != true {
		t.Errorf("resource = %v, want camelCase keys", body.Resource)
	}
}

func TestProxyHandler_Handle_POST(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		if string(raw) != `{"resource":[{"service_name":"db1"}]}` {
			t.Errorf("body = %s, want snake_case keys", raw)
		}
		if r.Header.Get("Notify-Success") != "" {
			t.Error("directive header reached the backend")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resource":[{"id":1}]}`))
	}))
	defer upstream.Close()

	h, _ := newTestProxy(t, testConfig(upstream.URL), "sess")
	req := httptest.NewRequest(http.MethodPost, "/api/v2/system/service", strings.NewReader(`{"resource":[{"serviceName":"db1"}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notify-Success", "Saved")
	rec := serve(t, h, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestProxyHandler_Handle_SessionLoginNotTransformed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(raw), `"rememberMe":true`) {
			t.Errorf("body = %s, want keys untouched", raw)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_token":"abc","session_id":"abc"}`))
	}))
	defer upstream.Close()

	h, _ := newTestProxy(t, testConfig(upstream.URL), "")
	req := httptest.NewRequest(http.MethodPost, "/api/v2/user/session", strings.NewReader(`{"email":"a@b.c","rememberMe":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(t, h, req)

	if !strings.Contains(rec.Body.String(), `"session_token"`) {
		t.Errorf("reply = %s, want keys untouched", rec.Body.String())
	}
}

func TestProxyHandler_Handle_VerbNotAllowed(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Gateway.AllowedVerbs = []string{"GET"}
	h, _ := newTestProxy(t, cfg, "")

	rec := serve(t, h, httptest.NewRequest(http.MethodDelete, "/api/v2/system/service/1", http.NoBody))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if got := rec.Header().Get("Allow"); got != "GET" {
		t.Errorf("Allow = %q, want %q", got, "GET")
	}
}

func TestProxyHandler_Handle_InvalidJSON(t *testing.T) {
	h, _ := newTestProxy(t, testConfig("http://127.0.0.1:1"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/v2/system/service", strings.NewReader(`{"broken"`))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(t, h, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestProxyHandler_Handle_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status    int
		category  apierror.Category
		retryable bool
		login     string
	}{
		{http.StatusUnauthorized, apierror.Authentication, false, "/login"},
		{http.StatusForbidden, apierror.Authorization, false, ""},
		{http.StatusNotFound, apierror.Client, false, ""},
		{http.StatusServiceUnavailable, apierror.Server, true, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"backend says no"}}`))
			}))
			defer upstream.Close()

			h, svc := newTestProxy(t, testConfig(upstream.URL), "sess")
			rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/api/v2/system/role", http.NoBody))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			detail := decodeError(t, rec)
			if detail.Category != string(tt.category) {
				t.Errorf("category = %q, want %q", detail.Category, tt.category)
			}
			if detail.Message != "backend says no" {
				t.Errorf("message = %q, want %q", detail.Message, "backend says no")
			}
			if detail.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", detail.Retryable, tt.retryable)
			}
			if detail.Login != tt.login {
				t.Errorf("login = %q, want %q", detail.Login, tt.login)
			}
			if detail.CorrelationID == "" {
				t.Error("correlationId is empty")
			}
			if want := tt.status != http.StatusUnauthorized; svc.HasSession(context.Background()) != want {
				t.Errorf("HasSession() = %v, want %v", !want, want)
			}
		})
	}
}

func TestProxyHandler_Handle_BackendUnreachable(t *testing.T) {
	h, _ := newTestProxy(t, testConfig("http://127.0.0.1:1"), "")

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/api/v2/system/service", http.NoBody))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	detail := decodeError(t, rec)
	if detail.Category != string(apierror.Network) {
		t.Errorf("category = %q, want %q", detail.Category, apierror.Network)
	}
	if !detail.Retryable {
		t.Error("network failure should be retryable")
	}
}

func TestProxyHandler_Handle_SkipErrorHandlingRelaysReply(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401}}`))
	}))
	defer upstream.Close()

	h, svc := newTestProxy(t, testConfig(upstream.URL), "sess")
	req := httptest.NewRequest(http.MethodGet, "/api/v2/user/profile", http.NoBody)
	req.Header.Set("Skip-Error-Handling", "")
	rec := serve(t, h, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), `"code":401`) {
		t.Errorf("body = %s, want backend reply", rec.Body.String())
	}
	if !svc.HasSession(context.Background()) {
		t.Error("session cleared although error handling was skipped")
	}
}

func TestProxyHandler_Handle_BinaryDownload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="pkg.zip"`)
		_, _ = w.Write([]byte("PK\x03\x04"))
	}))
	defer upstream.Close()

	h, _ := newTestProxy(t, testConfig(upstream.URL), "sess")
	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/api/v2/system/package", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("Content-Type") != "application/zip" {
		t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), "application/zip")
	}
	if rec.Header().Get("Content-Disposition") == "" {
		t.Error("Content-Disposition should be forwarded")
	}
	if rec.Body.String() != "PK\x03\x04" {
		t.Errorf("body = %q, want zip bytes", rec.Body.String())
	}
}

func TestProxyHandler_Handle_CanceledContext(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	h, _ := newTestProxy(t, testConfig(upstream.URL), "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v2/system/service", http.NoBody).WithContext(ctx)
	rec := serve(t, h, req)

	if rec.Code == http.StatusOK {
		t.Error("expected non-200 status for canceled context")
	}
	if detail := decodeError(t, rec); detail.Category != string(apierror.Network) {
		t.Errorf("category = %q, want %q", detail.Category, apierror.Network)
	}
}

func TestProxyHandler_mapError_Timeout(t *testing.T) {
	h := &ProxyHandler{logger: discardLogger()}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v2/x", http.NoBody), rec)

	err := &apierror.TransportError{Err: fmt.Errorf("backend: %w", context.DeadlineExceeded)}
	if err := h.mapError(c, err); err != nil {
		t.Fatalf("mapError() returned error: %v", err)
	}

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

func TestProxyHandler_mapError_StageError(t *testing.T) {
	h := &ProxyHandler{logger: discardLogger()}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v2/x", http.NoBody), rec)

	err := &pipeline.StageError{ID: "auth.request", Phase: pipeline.BeforeSend, Err: errors.New("boom")}
	if err := h.mapError(c, err); err != nil {
		t.Fatalf("mapError() returned error: %v", err)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if detail := decodeError(t, rec); strings.Contains(detail.Message, "boom") {
		t.Errorf("message = %q leaks stage internals", detail.Message)
	}
}

func TestProxyHandler_Handle_ResponseStageFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"resource":[]}`))
	}))
	defer upstream.Close()

	h, svc := newTestProxy(t, testConfig(upstream.URL), "")
	svc.Pipeline().MustUse(pipeline.Response("broken", 1, pipeline.ResponseFunc(
		func(context.Context, *model.ResponseEnvelope) (*model.ResponseEnvelope, error) {
			return nil, errors.New("stage bug")
		})))

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/api/v2/system/service", http.NoBody))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	detail := decodeError(t, rec)
	if detail.Category != "" || detail.Retryable {
		t.Errorf("detail = %+v, want an unclassified, non-retryable error", detail)
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name string
		ct   string
		body string
		want model.BodyKind
	}{
		{"json", "application/json", `{"a":1}`, model.BodyStructured},
		{"problem json", "application/problem+json", `{"a":1}`, model.BodyStructured},
		{"multipart", "multipart/form-data; boundary=x", "--x--", model.BodyBinary},
		{"plain text", "text/plain", "hi", model.BodyBinary},
		{"empty", "application/json", "", model.BodyNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v2/x", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.ct)
			got, err := decodeBody(req)
			if err != nil {
				t.Fatalf("decodeBody() error = %v", err)
			}
			if got.Kind() != tt.want {
				t.Errorf("Kind() = %v, want %v", got.Kind(), tt.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		name string
		err  string
		want string
	}{
		{
			name: "redacts api_key in URL",
			err:  `Get "https://df.example.com/api/v2/db?api_key=secret123&limit=1": connection refused`,
			want: `Get "https://df.example.com/api/v2/db?api_key=[REDACTED]&limit=1": connection refused`,
		},
		{
			name: "redacts session_token at end of URL",
			err:  `Get "https://df.example.com/api/v2/db?session_token=abc": EOF`,
			want: `Get "https://df.example.com/api/v2/db?session_token=[REDACTED]": EOF`,
		},
		{
			name: "no credential unchanged",
			err:  "connection refused",
			want: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeError(fmt.Errorf("%s", tt.err))
			if got != tt.want {
				t.Errorf("sanitizeError() = %q, want %q", got, tt.want)
			}
		})
	}
}
