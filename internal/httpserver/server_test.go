package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taoyao-code/sms-agent/internal/app"
	"github.com/taoyao-code/sms-agent/internal/backend"
	cfgpkg "github.com/taoyao-code/sms-agent/internal/config"
	"github.com/taoyao-code/sms-agent/internal/health"
	appmetrics "github.com/taoyao-code/sms-agent/internal/metrics"
	"github.com/taoyao-code/sms-agent/internal/radio"
	"github.com/taoyao-code/sms-agent/internal/settings"
	"github.com/taoyao-code/sms-agent/internal/sim"
)

func newTestServer(t *testing.T, ready bool) *Server {
	t.Helper()

	repo := settings.NewMemory()
	_ = repo.SetAPIKey(context.Background(), "key")
	_ = repo.SetPhoneNumber(context.Background(), settings.SIM1, "+8613800000001")

	api := backend.New(backend.Config{BaseURL: "http://127.0.0.1:0", Timeout: time.Second,
		Retries: 1, Backoff: []time.Duration{time.Millisecond}}, nil)
	bus := radio.NewBus(8, nil)
	lb := radio.NewLoopback(bus, 160, nil)
	lister := &sim.StaticSubscriptions{
		Subs:      []sim.Subscription{{ID: 1, Slot: 0, Number: "+8613800000001"}},
		DefaultID: 1,
	}
	resolver := sim.NewResolver(lister, repo, nil)
	orch := app.NewOrchestrator(repo, api, resolver, lb, bus, nil, nil, nil)
	heartbeat := app.NewHeartbeatEmitter(repo, api, nil, 0, nil, nil)
	poller := app.NewPoller(repo, orch, heartbeat, nil, 0, 0, nil, nil)
	registrar := app.NewRegistrar(repo, lister, func(cfg backend.Config) *backend.Client {
		cfg.Retries = 1
		cfg.Backoff = []time.Duration{time.Millisecond}
		return backend.New(cfg, nil)
	}, "test", time.Second, nil)

	status := health.StatusHealthy
	if !ready {
		status = health.StatusUnhealthy
	}
	aggregator := health.NewAggregator(health.CheckerFunc{
		CheckerName: "static",
		Fn: func(context.Context) health.CheckResult {
			return health.CheckResult{Status: status}
		},
	})

	reg := appmetrics.NewRegistry()
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	return New(cfg, "/metrics", Deps{
		Settings:  repo,
		Poller:    poller,
		Heartbeat: heartbeat,
		Registrar: registrar,
		Health:    aggregator,
		Metrics:   appmetrics.Handler(reg),
	})
}

func TestHealthzReadyzMetrics(t *testing.T) {
	srv := newTestServer(t, true)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s code=%d", path, rr.Code)
		}
	}
}

func TestReadyzNotReady(t *testing.T) {
	srv := newTestServer(t, false)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	srv.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz not-ready code=%d", rr.Code)
	}
}

func TestWakeAccepted(t *testing.T) {
	srv := newTestServer(t, true)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/wake", strings.NewReader(`{"message_id":"m1"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("/v1/wake code=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestWakeRejectsEmptyPayload(t *testing.T) {
	srv := newTestServer(t, true)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/wake", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	srv.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("/v1/wake 空请求 code=%d", rr.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	srv := newTestServer(t, true)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/login", strings.NewReader(`{"server_url":""}`))
	req.Header.Set("Content-Type", "application/json")
	srv.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("/v1/login 缺字段 code=%d", rr.Code)
	}
}

func TestStatusSnapshot(t *testing.T) {
	srv := newTestServer(t, true)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	srv.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("/v1/status code=%d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["logged_in"] != true {
		t.Fatalf("logged_in=%v", body["logged_in"])
	}
	if body["dual_sim"] != false {
		t.Fatalf("dual_sim=%v", body["dual_sim"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, true)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.srv.Handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("响应应携带 X-Request-ID")
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	srv.srv.Handler.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "fixed-id" {
		t.Fatal("已有的 X-Request-ID 应透传")
	}
}
