package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/sms-agent/internal/backend"
	"github.com/taoyao-code/sms-agent/internal/cryptox"
	"github.com/taoyao-code/sms-agent/internal/metrics"
	"github.com/taoyao-code/sms-agent/internal/settings"
	"github.com/taoyao-code/sms-agent/internal/timeutil"
)

// InboundMessage 宿主收到的一条来信
type InboundMessage struct {
	SIM     string
	From    string
	Content string
	At      time.Time
}

// MissedCall 宿主观测到的一次未接来电
type MissedCall struct {
	SIM  string
	From string
	At   time.Time
}

// Relay 入站中继：把来信和未接来电转发给后台。
// 上报失败不重试，来信语义是 at-most-once，丢了等人工补偿。
type Relay struct {
	settings settings.Repository
	api      *backend.Client
	metrics  *metrics.AppMetrics
	log      *zap.Logger
}

// NewRelay 创建入站中继
func NewRelay(repo settings.Repository, api *backend.Client, m *metrics.AppMetrics, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{settings: repo, api: api, metrics: m, log: log}
}

// OnMessageReceived 处理一条来信。
// 闸门顺序：已登录、该 SIM 来信开关、该 SIM 发送激活；
// 任一不满足直接静默丢弃（记日志与指标，不报错）。
func (r *Relay) OnMessageReceived(ctx context.Context, msg InboundMessage) bool {
	if !settings.IsLoggedIn(ctx, r.settings) {
		r.log.Warn("user is not logged in, dropping received message")
		r.count("sms", "dropped")
		return false
	}
	if !r.settings.IncomingEnabled(ctx, msg.SIM) {
		r.log.Debug("incoming messages disabled for sim, dropping", zap.String("sim", msg.SIM))
		r.count("sms", "dropped")
		return false
	}
	if !settings.SimActive(ctx, r.settings, msg.SIM) {
		r.log.Debug("sim is not active, dropping received message", zap.String("sim", msg.SIM))
		r.count("sms", "dropped")
		return false
	}

	content := msg.Content
	encrypted := false
	if r.settings.EncryptReceivedMessages(ctx) {
		key := r.settings.EncryptionKey(ctx)
		sealed, err := cryptox.Encrypt(key, content)
		if err != nil {
			// 加密配置坏了宁可明文丢弃也不上报坏密文
			r.log.Error("cannot encrypt received message, dropping", zap.Error(err))
			r.count("sms", "error")
			return false
		}
		content = sealed
		encrypted = true
	}

	ok := r.api.Receive(ctx, backend.ReceiveRequest{
		SIM:       msg.SIM,
		From:      msg.From,
		To:        r.settings.PhoneNumber(ctx, msg.SIM),
		Content:   content,
		Encrypted: encrypted,
		Timestamp: timeutil.Format(msg.At),
	})
	if ok {
		r.count("sms", "ok")
	} else {
		r.count("sms", "error")
	}
	return ok
}

// OnMissedCall 处理一次未接来电
func (r *Relay) OnMissedCall(ctx context.Context, call MissedCall) bool {
	if !settings.IsLoggedIn(ctx, r.settings) {
		r.log.Warn("user is not logged in, dropping missed call")
		r.count("missed_call", "dropped")
		return false
	}
	if !r.settings.CallEventsEnabled(ctx, call.SIM) {
		r.log.Debug("call events disabled for sim, dropping", zap.String("sim", call.SIM))
		r.count("missed_call", "dropped")
		return false
	}

	ok := r.api.StoreMissedCall(ctx, backend.MissedCallRequest{
		SIM:       call.SIM,
		From:      call.From,
		To:        r.settings.PhoneNumber(ctx, call.SIM),
		Timestamp: timeutil.Format(call.At),
	})
	if ok {
		r.count("missed_call", "ok")
	} else {
		r.count("missed_call", "error")
	}
	return ok
}

func (r *Relay) count(kind, result string) {
	if r.metrics != nil {
		r.metrics.InboundTotal.WithLabelValues(kind, result).Inc()
	}
}
