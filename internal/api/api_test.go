package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/siteprobe/siteprobe/internal/auth"
	"github.com/siteprobe/siteprobe/internal/config"
	"github.com/siteprobe/siteprobe/internal/metrics"
	"github.com/siteprobe/siteprobe/internal/probe"
	"github.com/siteprobe/siteprobe/internal/rpc"
)

type fakeProber struct {
	ProbeFunc func(ctx context.Context, req probe.Request) (*probe.Snapshot, error)
	last      probe.Request
}

func (f *fakeProber) Probe(ctx context.Context, req probe.Request) (*probe.Snapshot, error) {
	f.last = req
	if f.ProbeFunc != nil {
		return f.ProbeFunc(ctx, req)
	}
	return &probe.Snapshot{Platform: "standard", Variables: map[string]any{}}, nil
}

type fakeState struct {
	values map[string]any
}

func (f *fakeState) State(_ context.Context, key string) (any, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeState) SetState(_ context.Context, key string, value any) error {
	f.values[key] = value
	return nil
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeConfig map[string]probe.ConfigObject

func (f fakeConfig) Config(_ context.Context, name string) (probe.ConfigObject, error) {
	return f[name], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

func newTestRouter(t *testing.T, prober Prober, state *fakeState) (http.Handler, Dependencies) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	authService, err := auth.NewService("12345678901234567890123456789012", "admin", string(hash), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	deps := Dependencies{
		Config:  testConfig(),
		Prober:  prober,
		State:   state,
		DB:      fakePinger{},
		Auth:    authService,
		Metrics: metrics.New(),
		Logger:  discardLogger(),
	}
	return NewRouter(deps), deps
}

func decodeResponse(t *testing.T, codec rpc.Codec, body io.Reader) rpc.Response {
	t.Helper()
	var resp rpc.Response
	if err := codec.Decode(body, &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestRPCCall(t *testing.T) {
	denied := func(_ context.Context, req probe.Request) (*probe.Snapshot, error) {
		return nil, &probe.AccessDeniedError{IP: req.ClientIP, Key: req.ProbeKey}
	}
	broken := func(context.Context, probe.Request) (*probe.Snapshot, error) {
		return nil, &probe.DataSourceError{Section: "users", Err: errors.New("connection refused")}
	}

	tests := []struct {
		name      string
		body      string
		probe     func(context.Context, probe.Request) (*probe.Snapshot, error)
		status    int
		faultCode int
	}{
		{"success", `{"method":"probe","params":[["cron_last"]]}`, nil, http.StatusOK, 0},
		{"no params", `{"method":"probe"}`, nil, http.StatusOK, 0},
		{"malformed body", `{"method":`, nil, http.StatusBadRequest, rpc.CodeParseError},
		{"unknown method", `{"method":"system.listMethods","params":[]}`, nil, http.StatusOK, rpc.CodeMethodNotFound},
		{"invalid params", `{"method":"probe","params":["cron_last"]}`, nil, http.StatusOK, rpc.CodeInvalidParams},
		{"access denied", `{"method":"probe","params":[[]]}`, denied, http.StatusForbidden, rpc.CodeAccessDenied},
		{"data source failure", `{"method":"probe","params":[[]]}`, broken, http.StatusInternalServerError, rpc.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{ProbeFunc: tt.probe}
			router, _ := newTestRouter(t, prober, &fakeState{values: map[string]any{}})

			req := httptest.NewRequest(http.MethodPost, "/xmlrpc?probe_key=secret", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.RemoteAddr = "203.0.113.9:5000"
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			resp := decodeResponse(t, rpc.JSON, rec.Body)
			if tt.faultCode == 0 {
				if resp.Fault != nil {
					t.Fatalf("unexpected fault %v", resp.Fault)
				}
				if resp.Result == nil {
					t.Fatal("missing result")
				}
				return
			}
			if resp.Fault == nil || resp.Fault.Code != tt.faultCode {
				t.Fatalf("fault = %+v, want code %d", resp.Fault, tt.faultCode)
			}
		})
	}
}

func TestRPCCallPassesRequest(t *testing.T) {
	prober := &fakeProber{}
	router, _ := newTestRouter(t, prober, &fakeState{values: map[string]any{}})

	req := httptest.NewRequest(http.MethodPost, "/rpc?probe_key=secret", strings.NewReader(`{"method":"probe","params":[["cron_last"]]}`))
	req.RemoteAddr = "203.0.113.9:5000"
	router.ServeHTTP(httptest.NewRecorder(), req)

	if prober.last.ProbeKey != "secret" || prober.last.ClientIP != "203.0.113.9" {
		t.Errorf("request = %+v", prober.last)
	}
	if len(prober.last.Variables) != 1 || prober.last.Variables[0] != "cron_last" {
		t.Errorf("variables = %v", prober.last.Variables)
	}
}

func TestRPCCallHidesInternalErrors(t *testing.T) {
	prober := &fakeProber{ProbeFunc: func(context.Context, probe.Request) (*probe.Snapshot, error) {
		return nil, &probe.DataSourceError{Section: "logs", Err: errors.New("password authentication failed")}
	}}
	router, _ := newTestRouter(t, prober, &fakeState{values: map[string]any{}})

	req := httptest.NewRequest(http.MethodPost, "/xmlrpc", strings.NewReader(`{"method":"probe"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "password") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
}

func TestRPCCallCBOR(t *testing.T) {
	router, _ := newTestRouter(t, &fakeProber{}, &fakeState{values: map[string]any{}})

	var body bytes.Buffer
	if err := rpc.CBOR.Encode(&body, rpc.NewProbeRequest([]string{"cron_last"})); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/xmlrpc", &body)
	req.Header.Set("Content-Type", rpc.ContentTypeCBOR)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != rpc.ContentTypeCBOR {
		t.Fatalf("content type = %s", ct)
	}
	resp := decodeResponse(t, rpc.CBOR, rec.Body)
	result, ok := rpc.Normalize(resp.Result).(map[string]any)
	if !ok || result["platform"] != "standard" {
		t.Errorf("result = %v", resp.Result)
	}
}

func TestMaintenanceKeepsProbeReachable(t *testing.T) {
	state := &fakeState{values: map[string]any{"system.maintenance_mode": true}}
	router, _ := newTestRouter(t, &fakeProber{}, state)

	req := httptest.NewRequest(http.MethodPost, "/xmlrpc", strings.NewReader(`{"method":"probe"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("probe status = %d during maintenance", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"username":"admin","password":"hunter2"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("login status = %d, want 503", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	router, _ := newTestRouter(t, &fakeProber{}, &fakeState{values: map[string]any{}})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"username":"admin","password":"hunter2"}`, http.StatusOK},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"missing field", `{"username":"admin"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestSelfTestRoute(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("probe_key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(rpc.Response{Fault: rpc.NewFault(rpc.CodeAccessDenied, "Access denied")})
			return
		}
		json.NewEncoder(w).Encode(rpc.Response{Result: map[string]any{"variables": map[string]any{"cron_last": 1700000000}}})
	}))
	defer site.Close()

	settings := fakeConfig{probe.SettingsConfig: {probe.KeyProbeKey: "secret"}}
	client := rpc.NewClient(site.URL, "/xmlrpc", 5*time.Second)

	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	authService, err := auth.NewService("12345678901234567890123456789012", "admin", string(hash), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	router := NewRouter(Dependencies{
		Config:   testConfig(),
		Prober:   &fakeProber{},
		State:    &fakeState{values: map[string]any{}},
		Auth:     authService,
		SelfTest: NewSelfTest(settings, client, []string{"cron_last"}),
		Logger:   discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/probe/self", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	login, err := authService.Login("admin", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/probe/self", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "\n  \"variables\"") {
		t.Errorf("expected indented output, got %s", rec.Body.String())
	}
}

func TestSelfTestFault(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(rpc.Response{Fault: rpc.NewFault(rpc.CodeAccessDenied, "Access denied")})
	}))
	defer site.Close()

	selfTest := NewSelfTest(fakeConfig{}, rpc.NewClient(site.URL, "/xmlrpc", 5*time.Second), nil)
	_, err := selfTest.Run(context.Background())
	if !rpc.IsFault(err, rpc.CodeAccessDenied) {
		t.Fatalf("expected access denied fault, got %v", err)
	}

	rec := httptest.NewRecorder()
	NewSelfTestHandler(selfTest, discardLogger()).Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/probe/self", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rpc.JSON, rec.Body)
	if resp.Fault == nil || resp.Fault.Code != rpc.CodeAccessDenied || resp.Fault.Message != "Access denied" {
		t.Errorf("fault envelope = %+v", resp.Fault)
	}
}

func TestSelfTestUnreachable(t *testing.T) {
	site := httptest.NewServer(http.NotFoundHandler())
	site.Close()

	selfTest := NewSelfTest(fakeConfig{}, rpc.NewClient(site.URL, "/xmlrpc", time.Second), nil)
	rec := httptest.NewRecorder()
	NewSelfTestHandler(selfTest, discardLogger()).Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/probe/self", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	router, _ := newTestRouter(t, &fakeProber{}, &fakeState{values: map[string]any{}})

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	NewHealthHandler(fakePinger{err: errors.New("down")}).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", rec.Code)
	}
	var body ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Checks["database"] != "unreachable" {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestLoginValidationDetails(t *testing.T) {
	router, _ := newTestRouter(t, &fakeProber{}, &fakeState{values: map[string]any{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"username":"admin"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body struct {
		Error struct {
			Code    string       `json:"code"`
			Details []FieldError `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("code = %s", body.Error.Code)
	}
	if len(body.Error.Details) != 1 || body.Error.Details[0].Field != "password" {
		t.Errorf("details = %+v", body.Error.Details)
	}
}

func TestTrailingSlash(t *testing.T) {
	router, _ := newTestRouter(t, &fakeProber{}, &fakeState{values: map[string]any{}})

	req := httptest.NewRequest(http.MethodPost, "/xmlrpc/", strings.NewReader(`{"method":"probe"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
