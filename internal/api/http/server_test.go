package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Paintersrp/cohort/internal/api"
	"github.com/Paintersrp/cohort/internal/metrics"
)

func TestNewServerRequiresController(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatalf("expected error when controller is missing")
	}
}

func TestNormalizeAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":           defaultAddr,
		":80":        "127.0.0.1:80",
		"0.0.0.0:80": "127.0.0.1:80",
		"[::]:80":    "127.0.0.1:80",
		"host:9000":  "host:9000",
		"[::1]:443":  "[::1]:443",
	}

	for input, expected := range tests {
		input, expected := input, expected
		t.Run(fmt.Sprintf("%s->%s", input, expected), func(t *testing.T) {
			t.Parallel()
			if got := normalizeAddr(input); got != expected {
				t.Fatalf("normalizeAddr(%q)=%q, want %q", input, got, expected)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.GroupReport, error) {
			return &api.GroupReport{
				ID:          "g1",
				Job:         "demo",
				Procs:       2,
				GeneratedAt: time.Unix(123, 0),
				Workers: []api.WorkerReport{
					{Index: 0, Pid: 100, State: "running", ExitCode: -1},
					{Index: 1, Pid: 101, State: "succeeded"},
				},
			}, nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}

	var body api.GroupReport
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed decoding response: %v", err)
	}
	if body.Job != "demo" || len(body.Workers) != 2 {
		t.Fatalf("unexpected report: %+v", body)
	}
}

func TestHandleStatusError(t *testing.T) {
	ctrl := &mockController{
		statusFn: func(stdcontext.Context) (*api.GroupReport, error) {
			return nil, errors.New("boom")
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "internal_error" {
		t.Fatalf("expected internal_error code, got %q", body.Code)
	}
}

func TestHandleStatusMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &mockController{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "method_not_allowed" {
		t.Fatalf("expected method_not_allowed code, got %q", body.Code)
	}
}

func TestHandleTerminate(t *testing.T) {
	ctrl := &mockController{
		terminateFn: func(stdcontext.Context) (*api.TerminateResult, error) {
			return &api.TerminateResult{Terminated: 3, CompletedAt: time.Unix(456, 0)}, nil
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/terminate", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]api.TerminateResult
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	result, ok := body["terminate"]
	if !ok {
		t.Fatalf("expected terminate field in response")
	}
	if result.Terminated != 3 {
		t.Fatalf("expected 3 terminated workers, got %d", result.Terminated)
	}
}

func TestHandleTerminateNoActiveGroup(t *testing.T) {
	ctrl := &mockController{
		terminateFn: func(stdcontext.Context) (*api.TerminateResult, error) {
			return nil, api.ErrNoActiveGroup
		},
	}
	server := newTestServer(t, ctrl)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/terminate", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Code != "no_active_group" {
		t.Fatalf("expected no_active_group code, got %q", body.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &mockController{})

	metrics.EmitBuildInfo()
	metrics.GroupLaunched(1)
	metrics.WorkerExited()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "cohort_groups_launched_total") {
		t.Fatalf("expected group launch counter in metrics output, got:\n%s", body)
	}
	if !strings.Contains(body, "cohort_build_info{") {
		t.Fatalf("expected metrics output to include build info, got:\n%s", body)
	}
}

type mockController struct {
	statusFn    func(stdcontext.Context) (*api.GroupReport, error)
	terminateFn func(stdcontext.Context) (*api.TerminateResult, error)
}

func (m *mockController) Status(ctx stdcontext.Context) (*api.GroupReport, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return nil, nil
}

func (m *mockController) Terminate(ctx stdcontext.Context) (*api.TerminateResult, error) {
	if m.terminateFn != nil {
		return m.terminateFn(ctx)
	}
	return nil, nil
}

func newTestServer(t *testing.T, ctrl api.Controller) *Server {
	t.Helper()
	server, err := NewServer(Config{Controller: ctrl})
	if err != nil {
		t.Fatalf("failed creating server: %v", err)
	}
	return server
}
