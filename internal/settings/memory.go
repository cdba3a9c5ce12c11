package settings

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory 内存实现，主要用于测试与无持久化场景
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory 创建空的内存设置仓库
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) getBool(key string, def bool) bool {
	v, ok := m.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (m *Memory) APIKey(context.Context) string { v, _ := m.get(keyAPIKey); return v }
func (m *Memory) SetAPIKey(_ context.Context, k string) error { return m.set(keyAPIKey, k) }

func (m *Memory) ServerURL(context.Context) string { v, _ := m.get(keyServerURL); return v }
func (m *Memory) SetServerURL(_ context.Context, u string) error { return m.set(keyServerURL, u) }

func (m *Memory) UserID(context.Context) string { v, _ := m.get(keyUserID); return v }
func (m *Memory) SetUserID(_ context.Context, id string) error { return m.set(keyUserID, id) }

func (m *Memory) FcmToken(context.Context) string { v, _ := m.get(keyFcmToken); return v }
func (m *Memory) SetFcmToken(_ context.Context, t string) error { return m.set(keyFcmToken, t) }

func (m *Memory) PhoneNumber(_ context.Context, sim string) string {
	v, _ := m.get(keyPhoneNumber(sim))
	return v
}

func (m *Memory) SetPhoneNumber(_ context.Context, sim, number string) error {
	return m.set(keyPhoneNumber(sim), number)
}

func (m *Memory) ActiveStatus(_ context.Context, sim string) bool {
	return m.getBool(keyActiveStatus(sim), true)
}

func (m *Memory) SetActiveStatus(_ context.Context, sim string, active bool) error {
	return m.set(keyActiveStatus(sim), strconv.FormatBool(active))
}

func (m *Memory) IncomingEnabled(_ context.Context, sim string) bool {
	return m.getBool(keyIncomingEnabled(sim), true)
}

func (m *Memory) SetIncomingEnabled(_ context.Context, sim string, on bool) error {
	return m.set(keyIncomingEnabled(sim), strconv.FormatBool(on))
}

func (m *Memory) CallEventsEnabled(_ context.Context, sim string) bool {
	return m.getBool(keyCallEventsEnabled(sim), true)
}

func (m *Memory) SetCallEventsEnabled(_ context.Context, sim string, on bool) error {
	return m.set(keyCallEventsEnabled(sim), strconv.FormatBool(on))
}

func (m *Memory) EncryptionKey(context.Context) string { v, _ := m.get(keyEncryptionKey); return v }

func (m *Memory) SetEncryptionKey(_ context.Context, k string) error {
	return m.set(keyEncryptionKey, k)
}

func (m *Memory) EncryptReceivedMessages(ctx context.Context) bool {
	return m.getBool(keyEncryptReceived, false) && m.EncryptionKey(ctx) != ""
}

func (m *Memory) SetEncryptReceivedMessages(_ context.Context, on bool) error {
	return m.set(keyEncryptReceived, strconv.FormatBool(on))
}

func (m *Memory) HeartbeatTimestamp(context.Context) time.Time {
	v, ok := m.get(keyHeartbeatAt)
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}

func (m *Memory) SetHeartbeatTimestamp(_ context.Context, at time.Time) error {
	return m.set(keyHeartbeatAt, strconv.FormatInt(at.UnixMilli(), 10))
}

var _ Repository = (*Memory)(nil)
