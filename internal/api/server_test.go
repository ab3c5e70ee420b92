package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/roomgate/internal/auth"
	"github.com/nerrad567/roomgate/internal/gateway"
	"github.com/nerrad567/roomgate/internal/infrastructure/config"
	"github.com/nerrad567/roomgate/internal/infrastructure/logging"
	"github.com/nerrad567/roomgate/internal/store/memory"
)

const (
	testWriteToken = "esp-write-token"
	testReadToken  = "esp-read-token"
	testAdmin      = "console-admin-secret"
	testJWTSecret  = "test-secret-key-at-least-32-characters-long"
)

// testEnv bundles a server with the pieces tests inspect.
type testEnv struct {
	srv     *Server
	store   *memory.Store
	gateway *gateway.Gateway
	hub     *Hub
}

type envOption func(*gateway.Config, *Deps)

func withMaintenance() envOption {
	return func(c *gateway.Config, _ *Deps) { c.Maintenance = true }
}

func withOpenDownlink() envOption {
	return func(c *gateway.Config, _ *Deps) { c.OpenDownlink = true }
}

func withoutSessions() envOption {
	return func(c *gateway.Config, d *Deps) {
		c.SessionSecret = ""
		d.Security.JWT.Secret = ""
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

// newTestEnv builds a server over an in-memory store. The hub is running
// and registered as a gateway notifier.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	log := testLogger()
	st := memory.New()
	hub := NewHub(testWSConfig(), log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	gwCfg := gateway.Config{
		Secrets: gateway.Secrets{
			Write: testWriteToken,
			Read:  testReadToken,
			Admin: testAdmin,
		},
		SessionSecret: testJWTSecret,
		StoreTimeout:  time.Second,
	}
	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: testWSConfig(),
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Logger:  log,
		Hub:     hub,
		Version: "test",
	}
	for _, opt := range opts {
		opt(&gwCfg, &deps)
	}

	gw := gateway.New(st, gwCfg, gateway.WithLogger(log), gateway.WithNotifier(hub))
	deps.Gateway = gw

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return &testEnv{srv: srv, store: st, gateway: gw, hub: hub}
}

// do sends one request through the router.
func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal error body %q: %v", w.Body.String(), err)
	}
	return e
}

func (e *testEnv) tree(t *testing.T) string {
	t.Helper()
	raw, err := e.store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	return string(raw)
}

// failingStore rejects every call.
type failingStore struct{}

var errUnreachable = errors.New("unreachable")

func (failingStore) Put(context.Context, string, json.RawMessage) error { return errUnreachable }
func (failingStore) Patch(context.Context, string, map[string]json.RawMessage) error {
	return errUnreachable
}
func (failingStore) GetAll(context.Context) (json.RawMessage, error) { return nil, errUnreachable }
func (failingStore) HealthCheck(context.Context) error              { return errUnreachable }

// ─── Health & Root ─────────────────────────────────────────────────

func TestRoot(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != rootBanner {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, withMaintenance())

	w := env.do(http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" || resp["available"] != false {
		t.Errorf("health = %v", resp)
	}
}

func TestHealth_StoreDegraded(t *testing.T) {
	gw := gateway.New(failingStore{}, gateway.Config{})
	srv, err := New(Deps{Logger: testLogger(), Gateway: gw, Store: failingStore{}, Version: "test"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "degraded" || resp["store"] != "unreachable" {
		t.Errorf("health = %v", resp)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger expected error")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without gateway expected error")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/uplink", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"https://console.example"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want none", got)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeInternal {
		t.Errorf("code = %s, want %s", e.Code, ErrCodeInternal)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/nonexistent", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Uplink ────────────────────────────────────────────────────────

func TestUplink_Status(t *testing.T) {
	for _, path := range []string{"/uplink", "/api/update"} {
		t.Run(path, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(http.MethodPost, path, testWriteToken, `{"roomStatus":{"101":"free"},"heartbeat":{"up":5}}`)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}

			var resp uplinkResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Shape != gateway.ShapeStatus || len(resp.Written) != 2 {
				t.Errorf("response = %+v", resp)
			}
			if got := env.tree(t); got != `{"admin":{"heartbeat":{"up":5}},"roomStatus":{"101":"free"}}` {
				t.Errorf("tree = %s", got)
			}
		})
	}
}

func TestUplink_ReadingZero(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/uplink", testWriteToken, `{"room_id":"101","headcount":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var doc struct {
		Rooms map[string]struct {
			Headcount *int `json:"headcount"`
		} `json:"rooms"`
	}
	if err := json.Unmarshal([]byte(env.tree(t)), &doc); err != nil {
		t.Fatalf("unmarshal tree: %v", err)
	}
	if hc := doc.Rooms["101"].Headcount; hc == nil || *hc != 0 {
		t.Errorf("headcount = %v, want 0", hc)
	}
}

func TestUplink_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
	}{
		{"no token", "", `{"roomStatus":1}`, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"wrong token", "nope", `{"roomStatus":1}`, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"read token", testReadToken, `{"roomStatus":1}`, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"missing headcount", testWriteToken, `{"room_id":"101"}`, http.StatusBadRequest, ErrCodeValidation},
		{"not json", testWriteToken, `roomStatus`, http.StatusBadRequest, ErrCodeValidation},
		{"oversized", testWriteToken, `{"roomStatus":"` + strings.Repeat("x", gateway.MaxPayloadBytes) + `"}`, http.StatusBadRequest, ErrCodeValidation},
		{"oversized without token", "", `{"roomStatus":"` + strings.Repeat("x", gateway.MaxPayloadBytes) + `"}`, http.StatusUnauthorized, ErrCodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(http.MethodPost, "/uplink", tt.token, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if e := decodeError(t, w); e.Code != tt.code || e.Status != tt.status {
				t.Errorf("error = %+v, want code %s", e, tt.code)
			}
			if got := env.tree(t); got != "null" {
				t.Errorf("tree = %s, want untouched", got)
			}
		})
	}
}

func TestUplink_Maintenance(t *testing.T) {
	env := newTestEnv(t, withMaintenance())

	for _, token := range []string{testWriteToken, "wrong", ""} {
		w := env.do(http.MethodPost, "/uplink", token, `{"roomStatus":1}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("token %q: status = %d, want 503", token, w.Code)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Error("missing Retry-After header")
		}
		if e := decodeError(t, w); e.Code != ErrCodeMaintenance {
			t.Errorf("code = %s, want maintenance", e.Code)
		}
	}
	if got := env.tree(t); got != "null" {
		t.Errorf("tree = %s, want untouched", got)
	}
}

func TestUplink_UpstreamFailure(t *testing.T) {
	gw := gateway.New(failingStore{}, gateway.Config{
		Secrets:      gateway.Secrets{Write: testWriteToken},
		StoreTimeout: time.Second,
	})
	srv, err := New(Deps{Logger: testLogger(), Gateway: gw})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/uplink", strings.NewReader(`{"roomStatus":1}`))
	req.Header.Set("Authorization", "Bearer "+testWriteToken)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	e := decodeError(t, w)
	if e.Code != ErrCodeUpstream || strings.Contains(e.Message, errUnreachable.Error()) {
		t.Errorf("error = %+v, want generic upstream_error", e)
	}
}

// partialStore fails writes under admin/.
type partialStore struct{ *memory.Store }

func (p partialStore) Put(ctx context.Context, path string, value json.RawMessage) error {
	if strings.HasPrefix(path, "admin/") {
		return errUnreachable
	}
	return p.Store.Put(ctx, path, value)
}

func TestUplink_Partial(t *testing.T) {
	gw := gateway.New(partialStore{memory.New()}, gateway.Config{
		Secrets:      gateway.Secrets{Write: testWriteToken},
		StoreTimeout: time.Second,
	})
	srv, err := New(Deps{Logger: testLogger(), Gateway: gw})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/uplink", strings.NewReader(`{"roomStatus":1,"heartbeat":2,"adminResult":3}`))
	req.Header.Set("Authorization", "Bearer "+testWriteToken)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want 207", w.Code)
	}
	var resp partialError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != ErrCodeUpstreamPartial {
		t.Errorf("code = %s", resp.Code)
	}
	if len(resp.Written) != 1 || resp.Written[0] != gateway.FieldRoomStatus {
		t.Errorf("written = %v", resp.Written)
	}
	if len(resp.Failed) != 2 {
		t.Errorf("failed = %v", resp.Failed)
	}
}

// ─── Downlink ──────────────────────────────────────────────────────

func TestDownlink_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(http.MethodPost, "/uplink", testWriteToken, `{"roomStatus":{"101":"busy"}}`); w.Code != http.StatusOK {
		t.Fatalf("uplink status = %d", w.Code)
	}

	for _, path := range []string{"/downlink", "/api/status"} {
		w := env.do(http.MethodGet, path, testReadToken, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		if w.Body.String() != `{"roomStatus":{"101":"busy"}}` {
			t.Errorf("%s body = %s", path, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	}
}

func TestDownlink_Empty(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/downlink", testReadToken, "")
	if w.Code != http.StatusOK || w.Body.String() != "{}" {
		t.Errorf("downlink = %d %s, want 200 {}", w.Code, w.Body.String())
	}
}

func TestDownlink_Auth(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(http.MethodGet, "/downlink", testWriteToken, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("write token status = %d, want 401", w.Code)
	}

	open := newTestEnv(t, withOpenDownlink())
	if w := open.do(http.MethodGet, "/downlink", "", ""); w.Code != http.StatusOK {
		t.Errorf("open downlink status = %d, want 200", w.Code)
	}
}

func TestDownlink_IgnoresMaintenance(t *testing.T) {
	env := newTestEnv(t, withMaintenance())

	if w := env.do(http.MethodGet, "/downlink", testReadToken, ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// ─── Command ───────────────────────────────────────────────────────

func TestCommand(t *testing.T) {
	env := newTestEnv(t)
	if err := env.store.Put(context.Background(), "admin/heartbeat", json.RawMessage(`"X"`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := env.do(http.MethodPost, "/command", testAdmin, `{"command":"Y"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp commandResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.CommandID == "" || resp.IssuedAt == "" {
		t.Errorf("response = %+v", resp)
	}

	var doc struct {
		Admin map[string]any `json:"admin"`
	}
	if err := json.Unmarshal([]byte(env.tree(t)), &doc); err != nil {
		t.Fatalf("unmarshal tree: %v", err)
	}
	if doc.Admin["heartbeat"] != "X" || doc.Admin["command"] != "Y" || doc.Admin["commandId"] != resp.CommandID {
		t.Errorf("admin = %v", doc.Admin)
	}
}

func TestCommand_BodyPassword(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/command", "", `{"command":"open","password":"`+testAdmin+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if strings.Contains(env.tree(t), testAdmin) {
		t.Error("admin password stored in tree")
	}
}

func TestCommand_Rejections(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(http.MethodPost, "/command", testWriteToken, `{"command":"open"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("write token status = %d, want 401", w.Code)
	}
	if w := env.do(http.MethodPost, "/command", testAdmin, `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing command status = %d, want 400", w.Code)
	}

	maint := newTestEnv(t, withMaintenance())
	if w := maint.do(http.MethodPost, "/command", testAdmin, `{"command":"open"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("maintenance status = %d, want 503", w.Code)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestLogin_SessionAcceptedOnCommand(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/auth/login", "", `{"username":"ops","password":"`+testAdmin+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 15*60 {
		t.Errorf("login response = %+v", resp)
	}

	claims, err := auth.ParseSession(resp.AccessToken, testJWTSecret)
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}
	if claims.Subject != "ops" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}

	if w := env.do(http.MethodPost, "/command", resp.AccessToken, `{"command":"open"}`); w.Code != http.StatusOK {
		t.Errorf("command with session status = %d, want 200", w.Code)
	}
}

func TestLogin_Rejections(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(http.MethodPost, "/api/v1/auth/login", "", `{"password":"wrong"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/v1/auth/login", "", `{"password":`); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", w.Code)
	}

	disabled := newTestEnv(t, withoutSessions())
	if w := disabled.do(http.MethodPost, "/api/v1/auth/login", "", `{"password":"`+testAdmin+`"}`); w.Code != http.StatusNotFound {
		t.Errorf("sessions disabled status = %d, want 404", w.Code)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/auth/ws-ticket", testReadToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("ticket status = %d", w.Code)
	}
	var resp struct {
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !env.srv.validateTicket(resp.Ticket) {
		t.Error("first use should be valid")
	}
	if env.srv.validateTicket(resp.Ticket) {
		t.Error("second use should be rejected")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	env := newTestEnv(t)

	env.srv.tickets.mu.Lock()
	env.srv.tickets.tickets["stale"] = time.Now().Add(-time.Second)
	env.srv.tickets.mu.Unlock()

	if env.srv.validateTicket("stale") {
		t.Error("expired ticket should not be valid")
	}

	env.srv.tickets.mu.Lock()
	env.srv.tickets.tickets["stale"] = time.Now().Add(-time.Second)
	env.srv.tickets.mu.Unlock()
	env.srv.cleanExpiredTickets()

	env.srv.tickets.mu.Lock()
	defer env.srv.tickets.mu.Unlock()
	if len(env.srv.tickets.tickets) != 0 {
		t.Errorf("tickets = %d after cleanup, want 0", len(env.srv.tickets.tickets))
	}
}

func TestWSTicket_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(http.MethodPost, "/api/v1/auth/ws-ticket", testWriteToken, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

type fakeBroker struct{ connected bool }

func (b fakeBroker) IsConnected() bool { return b.connected }

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.srv.mqtt = fakeBroker{connected: true}

	env.do(http.MethodPost, "/uplink", testWriteToken, `{"roomStatus":1}`)
	env.do(http.MethodPost, "/uplink", "bad", `{"roomStatus":1}`)

	if w := env.do(http.MethodGet, "/api/v1/metrics", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated metrics status = %d, want 401", w.Code)
	}

	w := env.do(http.MethodGet, "/api/v1/metrics", testReadToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}

	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Gateway.Uplinks != 2 || m.Gateway.Denied != 1 {
		t.Errorf("gateway stats = %+v", m.Gateway)
	}
	if m.MQTT == nil || !m.MQTT.Connected {
		t.Errorf("mqtt = %+v", m.MQTT)
	}
	if !m.Available || m.Version != "test" || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServer_StartAndClose(t *testing.T) {
	port := freePort(t)
	gw := gateway.New(memory.New(), gateway.Config{})
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     port,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:      testWSConfig(),
		Logger:  testLogger(),
		Gateway: gw,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start expected error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d", port)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(addr + "/api/v1/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start error = %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get(addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestLoggingMiddleware_MasksCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWriter(&buf, config.LoggingConfig{Level: "info", Format: "text"}, "test")
	gw := gateway.New(memory.New(), gateway.Config{
		Secrets:      gateway.Secrets{Write: testWriteToken},
		StoreTimeout: time.Second,
	})
	srv, err := New(Deps{Logger: log, Gateway: gw})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws?ticket=tkt-value-123&channels=uplink", nil)
	req.Header.Set("Authorization", "Bearer "+testWriteToken)
	srv.buildRouter().ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "tkt-value-123") || strings.Contains(out, testWriteToken) {
		t.Fatalf("access log leaks a credential: %s", out)
	}
	if !strings.Contains(out, "ticket="+logging.Redacted+"&channels=uplink") {
		t.Errorf("access log = %s, want masked ticket and kept channels", out)
	}
}
