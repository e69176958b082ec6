package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/tablekeeper/internal/connector/connectortest"
	"github.com/faucetdb/tablekeeper/internal/maintainer"
	"github.com/faucetdb/tablekeeper/internal/mcp"
	"github.com/faucetdb/tablekeeper/internal/model"
	"github.com/faucetdb/tablekeeper/internal/service"
	"github.com/faucetdb/tablekeeper/internal/tracking"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const testJWTSecret = "test-secret-for-jwt-integration-tests"

// fakeBackend serves fixed maintainers without a connector registry.
type fakeBackend struct {
	maintainers map[string]*maintainer.Maintainer
	fakes       map[string]*connectortest.Fake
}

func (b *fakeBackend) Targets() []string {
	out := make([]string, 0, len(b.maintainers))
	for name := range b.maintainers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (b *fakeBackend) With(_ context.Context, target string, fn func(*maintainer.Maintainer) error) error {
	m, ok := b.maintainers[target]
	if !ok {
		return fmt.Errorf("%w %q", service.ErrUnknownTarget, target)
	}
	return fn(m)
}

func (b *fakeBackend) Ping(ctx context.Context) map[string]error {
	out := make(map[string]error)
	for name, f := range b.fakes {
		out[name] = f.Ping(ctx)
	}
	return out
}

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server  *Server
	backend *fakeBackend
	fake    *connectortest.Fake
	authSvc *service.AuthService
}

func newTestEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()

	store, err := tracking.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("tracking.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rows := int64(100)
	fake := connectortest.New("8.0.36")
	for _, name := range []string{"docs", "events"} {
		fake.AddTable(model.TableStatus{
			Schema: "app", Table: name, Engine: model.EngineInnoDB, RowFormat: "Dynamic",
			Rows: &rows, DataLength: 4096,
		})
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC) }
	m := maintainer.New(fake, store, model.FeatureMatrix{FilePerTable: true}, model.Settings{}, logger, clock)

	backend := &fakeBackend{
		maintainers: map[string]*maintainer.Maintainer{"primary": m},
		fakes:       map[string]*connectortest.Fake{"primary": fake},
	}
	authSvc := service.NewAuthService(testJWTSecret)

	cfg := DefaultConfig()
	cfg.RateLimit = 0
	cfg.RunRateLimit = 0
	for _, o := range opts {
		o(&cfg)
	}
	return &testEnv{
		server:  New(cfg, backend, authSvc, logger),
		backend: backend,
		fake:    fake,
		authSvc: authSvc,
	}
}

func (e *testEnv) token(t *testing.T, scopes ...string) string {
	t.Helper()
	tok, err := e.authSvc.IssueJWT("ops", scopes, time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	return tok
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAuth executes a request authenticated with token.
func (e *testEnv) doAuth(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" || resp.Checks["primary"] != "ok" {
		t.Errorf("unexpected readiness %+v", resp)
	}
}

func TestReadyz_Degraded(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Errors["Ping"] = errors.New("connection refused")

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "degraded" || !strings.Contains(resp.Checks["primary"], "connection refused") {
		t.Errorf("unexpected readiness %+v", resp)
	}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

func TestAPI_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/v1/targets",
		"/api/v1/primary/features",
		"/api/v1/primary/app/suggestions",
		"/api/v1/primary/app/commands",
	} {
		rr := env.do(t, "GET", path, nil, nil)
		assertStatus(t, rr, http.StatusUnauthorized)
	}
	rr := env.doAuth(t, "GET", "/api/v1/targets", nil, "not-a-jwt")
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestAPI_AuthDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.server = New(DefaultConfig(), env.backend, service.NewAuthService(""), slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := env.do(t, "GET", "/api/v1/targets", nil, nil)
	assertStatus(t, rr, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Maintenance endpoints
// ---------------------------------------------------------------------------

func TestListTargets(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAuth(t, "GET", "/api/v1/targets", nil, env.token(t, service.ScopeRead))
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Resource []string           `json:"resource"`
		Meta     model.ResponseMeta `json:"meta"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Resource) != 1 || resp.Resource[0] != "primary" || resp.Meta.Count != 1 {
		t.Errorf("unexpected targets %+v", resp)
	}
}

func TestFeatures(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, service.ScopeRead)

	rr := env.doAuth(t, "GET", "/api/v1/primary/features", nil, tok)
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		Features model.FeatureMatrix `json:"features"`
	}
	decodeJSON(t, rr, &resp)
	if !resp.Features.FilePerTable {
		t.Errorf("unexpected features %+v", resp.Features)
	}

	rr = env.doAuth(t, "GET", "/api/v1/nope/features", nil, tok)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestSuggestions(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, service.ScopeRead)

	rr := env.doAuth(t, "GET", "/api/v1/primary/app/suggestions", nil, tok)
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		Resource []model.Suggestion `json:"resource"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Resource) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", resp.Resource)
	}

	rr = env.doAuth(t, "GET", "/api/v1/primary/app/suggestions?table=events", nil, tok)
	assertStatus(t, rr, http.StatusOK)
	resp.Resource = nil
	decodeJSON(t, rr, &resp)
	if len(resp.Resource) != 1 || resp.Resource[0].Table != "events" {
		t.Errorf("table filter ignored: %+v", resp.Resource)
	}
}

func TestSuggestions_InvalidSchema(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAuth(t, "GET", "/api/v1/primary/app%60x/suggestions", nil, env.token(t, service.ScopeRead))
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestCommands(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, service.ScopeRead)

	rr := env.doAuth(t, "GET", "/api/v1/primary/app/commands?table=docs", nil, tok)
	assertStatus(t, rr, http.StatusOK)
	var plan model.Plan
	decodeJSON(t, rr, &plan)
	if len(plan.Order) != 1 || plan.Order[0] != "docs" {
		t.Errorf("unexpected order %v", plan.Order)
	}
	if len(plan.Tables["docs"]) == 0 {
		t.Error("expected commands for docs")
	}

	rr = env.doAuth(t, "GET", "/api/v1/primary/app/commands?table=docs&flatten=1&integrate=1", nil, tok)
	assertStatus(t, rr, http.StatusOK)
	plan = model.Plan{}
	decodeJSON(t, rr, &plan)
	if plan.Tables != nil || len(plan.Flat) == 0 {
		t.Errorf("expected a flat script, got %+v", plan)
	}
	integrated := false
	for _, stmt := range plan.Flat {
		if strings.HasPrefix(stmt, "UPDATE `maintainer__tables`") {
			integrated = true
		}
	}
	if !integrated {
		t.Errorf("integrate=1 should add bookkeeping updates: %v", plan.Flat)
	}

	if len(env.fake.Statements()) != 0 {
		t.Errorf("planning must not execute statements, got %v", env.fake.Statements())
	}
}

func TestRun_RequiresRunScope(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAuth(t, "POST", "/api/v1/primary/app/run", nil, env.token(t, service.ScopeRead))
	assertStatus(t, rr, http.StatusForbidden)
	if len(env.fake.Statements()) != 0 {
		t.Errorf("forbidden run executed %v", env.fake.Statements())
	}
}

func TestRun(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAuth(t, "POST", "/api/v1/primary/app/run", nil, env.token(t, service.ScopeRead, service.ScopeRun))
	assertStatus(t, rr, http.StatusOK)

	var res model.RunResult
	decodeJSON(t, rr, &res)
	if res.RunID == "" || res.Schema != "app" {
		t.Errorf("unexpected run header %+v", res)
	}
	if len(res.Tables) != 2 {
		t.Errorf("expected results for 2 tables, got %v", res.Tables)
	}
}

func TestRun_Locked(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Locks[maintainer.LockName("app")] = true

	rr := env.doAuth(t, "POST", "/api/v1/primary/app/run", nil, env.token(t, service.ScopeRun))
	assertStatus(t, rr, http.StatusConflict)
}

func TestRun_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAuth(t, "GET", "/api/v1/primary/app/run", nil, env.token(t, service.ScopeRun))
	assertStatus(t, rr, http.StatusMethodNotAllowed)
}

func TestRun_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RunRateLimit = 1 })
	tok := env.token(t, service.ScopeRun)

	assertStatus(t, env.doAuth(t, "POST", "/api/v1/primary/app/run", nil, tok), http.StatusOK)
	assertStatus(t, env.doAuth(t, "POST", "/api/v1/primary/app/run", nil, tok), http.StatusTooManyRequests)
}

func TestErrorResponseFormat(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAuth(t, "GET", "/api/v1/nope/features", nil, env.token(t, service.ScopeRead))
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Code != http.StatusBadRequest || !strings.Contains(resp.Error.Message, "unknown target") {
		t.Errorf("unexpected error envelope %+v", resp)
	}
}

// ---------------------------------------------------------------------------
// OpenAPI, CORS and MCP
// ---------------------------------------------------------------------------

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var doc map[string]interface{}
	decodeJSON(t, rr, &doc)
	if doc["openapi"] != "3.1.0" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
	paths, _ := doc["paths"].(map[string]interface{})
	if _, ok := paths["/api/v1/{target}/{schema}/run"]; !ok {
		t.Error("run path missing from the OpenAPI document")
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/healthz", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "GET",
		"Access-Control-Request-Headers": "Authorization,Content-Type",
	})

	// Chi's CORS handler should return a 2xx for preflight.
	if rr.Code < 200 || rr.Code >= 300 {
		t.Errorf("CORS preflight status = %d, want 2xx", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

func initializeBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	return jsonBody(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]interface{}{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]interface{}{},
			"clientInfo": map[string]interface{}{
				"name":    "test",
				"version": "1.0",
			},
		},
	})
}

func TestMCPEndpoint(t *testing.T) {
	env := newTestEnv(t)
	mcpSrv := mcp.NewMCPServer(env.backend, false, "test", nil)
	cfg := DefaultConfig()
	cfg.MCP = mcpserver.NewStreamableHTTPServer(mcpSrv.Server())
	env.server = New(cfg, env.backend, env.authSvc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := env.do(t, "POST", "/mcp", initializeBody(t), nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	rr = env.doAuth(t, "POST", "/mcp", initializeBody(t), env.token(t, service.ScopeRead))
	if rr.Code == http.StatusUnauthorized || rr.Code == http.StatusForbidden {
		t.Fatalf("MCP endpoint returned %d with a valid token", rr.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err == nil {
		if result, ok := resp["result"].(map[string]interface{}); ok {
			if serverInfo, ok := result["serverInfo"].(map[string]interface{}); ok {
				if serverInfo["name"] != "tablekeeper" {
					t.Errorf("serverInfo.name = %v, want tablekeeper", serverInfo["name"])
				}
			}
		}
	}
}
