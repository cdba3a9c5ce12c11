package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:       srv.URL,
		APIKey:        "test-key",
		ClientVersion: "test",
		Timeout:       2 * time.Second,
		Retries:       1,
		Backoff:       []time.Duration{time.Millisecond},
	}, nil)
}

func TestGetOutstandingMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages/outstanding" {
			t.Errorf("path=%q", r.URL.Path)
		}
		if got := r.URL.Query().Get("message_id"); got != "m1" {
			t.Errorf("message_id=%q", got)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key=%q", got)
		}
		if got := r.Header.Get("X-Client-Version"); got != "test" {
			t.Errorf("X-Client-Version=%q", got)
		}
		_ = json.NewEncoder(w).Encode(messageResponse{
			Data: &Message{ID: "m1", Contact: "+8613800000001", Content: "hi", SIM: "SIM1"},
		})
	})

	msg, err := c.GetOutstandingMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetOutstandingMessage: %v", err)
	}
	if msg.ID != "m1" || msg.Content != "hi" {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestGetOutstandingMessageNotFound(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := c.GetOutstandingMessage(context.Background(), "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("期望 ErrNotFound, got %v", err)
	}
}

func TestGetOutstandingMessageInvalidPayload(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	if _, err := c.GetOutstandingMessage(context.Background(), "m1"); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("坏载荷应报 ErrInvalidPayload, got %v", err)
	}
}

func TestSendEventTwiceIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	first := c.SendSentEvent(context.Background(), "m1", at)
	second := c.SendSentEvent(context.Background(), "m1", at)
	if !first || !second {
		t.Fatalf("重复上报同一事件应两次都成功: first=%v second=%v", first, second)
	}
	if calls.Load() != 2 {
		t.Fatalf("调用次数=%d, 期望2", calls.Load())
	}
}

func TestSendEventPayload(t *testing.T) {
	var got eventRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages/m1/events" {
			t.Errorf("path=%q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	})

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !c.SendFailedEvent(context.Background(), "m1", at, "NO_SERVICE") {
		t.Fatal("事件上报应成功")
	}
	if got.EventName != EventFailed {
		t.Errorf("event_name=%q", got.EventName)
	}
	if got.Reason == nil || *got.Reason != "NO_SERVICE" {
		t.Errorf("reason=%v", got.Reason)
	}
	if got.Timestamp != "2024-01-02T03:04:05.000000000Z" {
		t.Errorf("timestamp=%q", got.Timestamp)
	}
}

func TestSendEventNotFoundIsIdempotentSuccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if !c.SendSentEvent(context.Background(), "m1", time.Now()) {
		t.Fatal("后台已终态化的消息，事件上报应按幂等成功处理")
	}
}

func TestSendEventRejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	if c.SendDeliveredEvent(context.Background(), "m1", time.Now()) {
		t.Fatal("4xx 拒绝应返回 false")
	}
}

func TestDoRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(messageResponse{Data: &Message{ID: "m1"}})
	})

	if _, err := c.GetOutstandingMessage(context.Background(), "m1"); err != nil {
		t.Fatalf("5xx 后重试应成功: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("调用次数=%d, 期望2", calls.Load())
	}
}

func TestReceiveMalformedNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	ok := c.Receive(context.Background(), ReceiveRequest{From: "+1", To: "+2", Content: "hi"})
	if ok {
		t.Fatal("畸形请求应返回 false")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx 不应重试, 调用次数=%d", calls.Load())
	}
}

func TestStoreHeartbeat(t *testing.T) {
	var got heartbeatRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/heartbeats" {
			t.Errorf("path=%q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	})

	if !c.StoreHeartbeat(context.Background(), []string{"+1", "+2"}, true) {
		t.Fatal("心跳上报应成功")
	}
	if len(got.PhoneNumbers) != 2 || !got.Charging {
		t.Fatalf("payload=%+v", got)
	}
}

func TestUpdatePhone(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/phones" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req phoneRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.PhoneNumber != "+8613800000001" || req.SIM != "SIM1" {
			t.Errorf("payload=%+v", req)
		}
		_ = json.NewEncoder(w).Encode(phoneResponse{Data: &Phone{ID: "p1", UserID: "u1"}})
	})

	phone, err := c.UpdatePhone(context.Background(), "+8613800000001", "SIM1", "token")
	if err != nil {
		t.Fatalf("UpdatePhone: %v", err)
	}
	if phone.UserID != "u1" {
		t.Fatalf("phone=%+v", phone)
	}
}

func TestValidateAPIKeyUnauthorized(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if err := c.ValidateAPIKey(context.Background()); err == nil {
		t.Fatal("401 应报错")
	}
}
