package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/q2galaxy/internal/config"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/store"
	"github.com/me/q2galaxy/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testServer(opts ...Option) *Server {
	return New(config.Default(), plugin.NewRegistry(plugin.MysteryStew()), testLogger(), opts...)
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func do(t *testing.T, srv *Server, method, path, body string, wantStatus int) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status=%d, want %d, body=%s", method, path, w.Code, wantStatus, w.Body.String())
	}
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON: %v: %s", err, w.Body.String())
	}
	return env
}

func doGet(t *testing.T, srv *Server, path string) envelope {
	t.Helper()
	return decode(t, do(t, srv, "GET", path, "", http.StatusOK))
}

func TestDiscovery(t *testing.T) {
	env := doGet(t, testServer(), "/api/v1/")
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Name      string `json:"name"`
		Endpoints []struct {
			Path string `json:"path"`
		} `json:"endpoints"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Name != "q2galaxy API" {
		t.Errorf("name = %q, want q2galaxy API", data.Name)
	}
	if len(data.Endpoints) != 10 {
		t.Errorf("endpoints count = %d, want 10", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	env := doGet(t, testServer(), "/api/v1/health")

	var data struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Plugins int    `json:"plugins"`
		Index   string `json:"index"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" {
		t.Errorf("status = %q, want healthy", data.Status)
	}
	if data.Plugins != 1 {
		t.Errorf("plugins = %d, want 1", data.Plugins)
	}
	if data.Index != "disabled" {
		t.Errorf("index = %q, want disabled", data.Index)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := testServer()

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req_client")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req_client" {
		t.Errorf("X-Request-ID = %q, want req_client", got)
	}

	w = do(t, srv, "GET", "/api/v1/health", "", http.StatusOK)
	if got := w.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req_") {
		t.Errorf("X-Request-ID = %q, want req_ prefix", got)
	}
}

func TestListPlugins(t *testing.T) {
	env := doGet(t, testServer(), "/api/v1/plugins")

	var data []model.PluginSummary
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data) != 1 || data[0].ID != plugin.StewID {
		t.Fatalf("plugins = %+v", data)
	}
	if data[0].Actions[0] != "primitive_params" {
		t.Errorf("first action = %q", data[0].Actions[0])
	}
}

func TestGetPlugin(t *testing.T) {
	srv := testServer()
	env := doGet(t, srv, "/api/v1/plugins/mystery_stew")

	var data pluginDetail
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Package != "q2-mystery-stew" {
		t.Errorf("package = %q", data.Package)
	}
	if data.Actions[0].ToolID != "qiime2__mystery_stew__primitive_params" {
		t.Errorf("tool_id = %q", data.Actions[0].ToolID)
	}

	env = decode(t, do(t, srv, "GET", "/api/v1/plugins/nope", "", http.StatusNotFound))
	if env.Status != "error" || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestToolXML(t *testing.T) {
	srv := testServer()
	w := do(t, srv, "GET", "/api/v1/plugins/mystery_stew/actions/primitive_params/tool.xml", "", http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `<tool id="qiime2__mystery_stew__primitive_params"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}

	do(t, srv, "GET", "/api/v1/plugins/mystery_stew/actions/nope/tool.xml", "", http.StatusNotFound)
}

func TestBuiltinXML(t *testing.T) {
	srv := testServer()
	w := do(t, srv, "GET", "/api/v1/builtins/import/tool.xml", "", http.StatusOK)
	if !strings.Contains(w.Body.String(), `<tool id="qiime2__tools__import"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
	do(t, srv, "GET", "/api/v1/builtins/convert/tool.xml", "", http.StatusNotFound)
}

func TestSchema(t *testing.T) {
	env := doGet(t, testServer(), "/api/v1/plugins/mystery_stew/actions/primitive_params/schema")

	var fields []struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		t.Fatal(err)
	}
	if len(fields) != 4 || fields[0].Name != "int_range" || fields[0].Kind != "integer" {
		t.Errorf("fields = %+v", fields)
	}
}

func TestCheck(t *testing.T) {
	srv := testServer()
	path := "/api/v1/plugins/mystery_stew/actions/primitive_params/check"

	env := decode(t, do(t, srv, "POST", path,
		`{"int_range": 5, "float_param": 1.5, "str_param": "hi", "bool_param": "True"}`, http.StatusOK))
	var res model.CheckResult
	json.Unmarshal(env.Data, &res)
	if !res.Valid {
		t.Errorf("expected valid, got %+v", res.Errors)
	}

	env = decode(t, do(t, srv, "POST", path, `{"int_range": 50}`, http.StatusOK))
	res = model.CheckResult{}
	json.Unmarshal(env.Data, &res)
	if res.Valid || len(res.Errors) == 0 || res.Errors[0].Field != "int_range" {
		t.Errorf("expected int_range error, got %+v", res)
	}

	env = decode(t, do(t, srv, "POST", path, `{not json`, http.StatusBadRequest))
	if env.Error.Code != model.ErrValidation {
		t.Errorf("code = %q", env.Error.Code)
	}
}

func TestInvocationsDisabled(t *testing.T) {
	env := decode(t, do(t, testServer(), "GET", "/api/v1/invocations", "", http.StatusNotFound))
	if env.Error.Message != "invocation index is not configured" {
		t.Errorf("message = %q", env.Error.Message)
	}
}

func TestInvocations(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"inv_a", "inv_b", "inv_c"} {
		if err := st.CreateInvocation(ctx, &model.Invocation{
			ID:        id,
			PluginID:  plugin.StewID,
			ActionID:  "primitive_params",
			Stage:     model.StageDone,
			Inputs:    map[string]any{},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.CreateResult(ctx, &model.ResultRecord{
		ID: "res_1", InvocationID: "inv_c", Name: "out", UUID: "0e4a8b3c-1111-4222-8333-944455556666",
		Type: "EchoOutput", Format: "EchoOutputFormat", Path: "out.qza", Size: 1024, CreatedAt: base,
	}); err != nil {
		t.Fatal(err)
	}

	srv := testServer(WithStore(st))
	env := doGet(t, srv, "/api/v1/invocations?limit=2")
	var invs []model.Invocation
	json.Unmarshal(env.Data, &invs)
	if len(invs) != 2 || invs[0].ID != "inv_c" {
		t.Fatalf("invocations = %+v", invs)
	}
	if env.Pagination == nil || env.Pagination.Total != 3 || !env.Pagination.HasMore {
		t.Errorf("pagination = %+v", env.Pagination)
	}

	env = doGet(t, srv, "/api/v1/invocations/inv_c")
	var inv model.Invocation
	json.Unmarshal(env.Data, &inv)
	if len(inv.Results) != 1 || inv.Results[0].Name != "out" {
		t.Errorf("results = %+v", inv.Results)
	}
	do(t, srv, "GET", "/api/v1/invocations/inv_x", "", http.StatusNotFound)

	env = doGet(t, srv, "/api/v1/results/0e4a8b3c-1111-4222-8333-944455556666")
	var res model.ResultRecord
	json.Unmarshal(env.Data, &res)
	if res.InvocationID != "inv_c" {
		t.Errorf("result = %+v", res)
	}
}
