package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taoyao-code/sms-agent/internal/backend"
	"github.com/taoyao-code/sms-agent/internal/radio"
	"github.com/taoyao-code/sms-agent/internal/settings"
	"github.com/taoyao-code/sms-agent/internal/sim"
)

// recordedEvent 后台收到的事件上报
type recordedEvent struct {
	MessageID string
	EventName string  `json:"event_name"`
	Reason    *string `json:"reason"`
	Timestamp string  `json:"timestamp"`
}

// fakeBackend 进程内后台：记录事件/心跳/来信，按表提供待发送任务
type fakeBackend struct {
	mu          sync.Mutex
	outstanding map[string]*backend.Message
	failFetches bool
	garbleFetch bool

	events     []recordedEvent
	heartbeats int
	phonePuts  int
	received   []map[string]any
	calls      []map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{outstanding: make(map[string]*backend.Message)}
}

func (f *fakeBackend) serve(t *testing.T) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return backend.New(backend.Config{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		ClientVersion: "test",
		Timeout:       2 * time.Second,
		Retries:       1,
		Backoff:       []time.Duration{time.Millisecond},
	}, nil)
}

func (f *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/v1/messages/outstanding":
		if f.failFetches {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if f.garbleFetch {
			_, _ = w.Write([]byte("not json"))
			return
		}
		msg, ok := f.outstanding[r.URL.Query().Get("message_id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": msg, "status": "success"})

	case strings.HasSuffix(r.URL.Path, "/events"):
		var ev recordedEvent
		_ = json.NewDecoder(r.Body).Decode(&ev)
		ev.MessageID = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/messages/"), "/events")
		f.events = append(f.events, ev)
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/v1/heartbeats":
		f.heartbeats++
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/v1/messages/receive":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.received = append(f.received, body)
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/v1/messages/calls/missed":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.calls = append(f.calls, body)
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/v1/phones" || r.URL.Path == "/v1/phones/fcm-token":
		f.phonePuts++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"id": "p1", "user_id": "u1"}, "status": "success",
		})

	case r.URL.Path == "/v1/users/me":
		if r.Header.Get("x-api-key") == "" || r.Header.Get("x-api-key") == "bad-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBackend) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		names = append(names, ev.EventName)
	}
	return names
}

func (f *fakeBackend) lastEvent(t *testing.T) recordedEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		t.Fatal("后台未收到任何事件")
	}
	return f.events[len(f.events)-1]
}

func (f *fakeBackend) eventMessageIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		ids = append(ids, ev.MessageID)
	}
	return ids
}

func (f *fakeBackend) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// loggedInRepo 已登录的内存设置仓库
func loggedInRepo(ctx context.Context) *settings.Memory {
	repo := settings.NewMemory()
	_ = repo.SetAPIKey(ctx, "test-key")
	_ = repo.SetPhoneNumber(ctx, settings.SIM1, "+8613800000001")
	return repo
}

// testRig 编排器测试全套装配
type testRig struct {
	repo     *settings.Memory
	api      *backend.Client
	bus      *radio.Bus
	lb       *radio.Loopback
	resolver *sim.Resolver
	orch     *Orchestrator
	backend  *fakeBackend
}

func newTestRig(ctx context.Context, t *testing.T, limit int) *testRig {
	t.Helper()
	fb := newFakeBackend()
	api := fb.serve(t)
	repo := loggedInRepo(ctx)
	bus := radio.NewBus(64, nil)
	lb := radio.NewLoopback(bus, limit, nil)
	lister := &sim.StaticSubscriptions{
		Subs: []sim.Subscription{
			{ID: 1, Slot: 0, Number: "+8613800000001"},
			{ID: 2, Slot: 1, Number: "+8613800000002"},
		},
		DefaultID: 1,
	}
	resolver := sim.NewResolver(lister, repo, nil)
	orch := NewOrchestrator(repo, api, resolver, lb, bus, nil, nil, nil)
	return &testRig{repo: repo, api: api, bus: bus, lb: lb, resolver: resolver, orch: orch, backend: fb}
}

func drainBus(bus *radio.Bus) []radio.Completion {
	var out []radio.Completion
	for {
		select {
		case c := <-bus.Completions():
			out = append(out, c)
		default:
			return out
		}
	}
}
