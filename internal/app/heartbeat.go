package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/sms-agent/internal/backend"
	"github.com/taoyao-code/sms-agent/internal/metrics"
	"github.com/taoyao-code/sms-agent/internal/settings"
)

// ChargingProbe 宿主充电状态探测能力
type ChargingProbe interface {
	Charging(ctx context.Context) bool
}

// ChargingProbeFunc 函数适配器
type ChargingProbeFunc func(ctx context.Context) bool

// Charging 实现 ChargingProbe
func (f ChargingProbeFunc) Charging(ctx context.Context) bool { return f(ctx) }

// HeartbeatEmitter 心跳上报器：粗周期定时 + 手动触发。
// 一次心跳覆盖全部活跃 SIM 的手机号和充电状态；
// 本地 last-success 时间戳只用于状态展示，不参与协议逻辑。
type HeartbeatEmitter struct {
	settings settings.Repository
	api      *backend.Client
	probe    ChargingProbe
	interval time.Duration
	metrics  *metrics.AppMetrics
	log      *zap.Logger
}

// NewHeartbeatEmitter 创建心跳上报器
func NewHeartbeatEmitter(
	repo settings.Repository,
	api *backend.Client,
	probe ChargingProbe,
	interval time.Duration,
	m *metrics.AppMetrics,
	log *zap.Logger,
) *HeartbeatEmitter {
	if probe == nil {
		probe = ChargingProbeFunc(func(context.Context) bool { return false })
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HeartbeatEmitter{
		settings: repo,
		api:      api,
		probe:    probe,
		interval: interval,
		metrics:  m,
		log:      log,
	}
}

// Run 周期心跳直到 ctx 结束
func (e *HeartbeatEmitter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	// 启动即发一次，让后台尽快看到存活
	e.Trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Trigger(ctx)
		}
	}
}

// Trigger 立即上报一次心跳（周期与手动共用）。
// 失败直接丢弃，等下一个自然触发，不在线内重试。
func (e *HeartbeatEmitter) Trigger(ctx context.Context) bool {
	if !settings.IsLoggedIn(ctx, e.settings) {
		e.log.Warn("user is not logged in, skipping heartbeat")
		return false
	}

	var numbers []string
	for _, s := range []string{settings.SIM1, settings.SIM2} {
		if !settings.SimActive(ctx, e.settings, s) {
			continue
		}
		if number := e.settings.PhoneNumber(ctx, s); number != "" {
			numbers = append(numbers, number)
		}
	}
	if len(numbers) == 0 {
		e.log.Warn("no active sim with a registered phone number, skipping heartbeat")
		return false
	}

	if !e.api.StoreHeartbeat(ctx, numbers, e.probe.Charging(ctx)) {
		e.log.Warn("heartbeat report failed")
		return false
	}

	if e.metrics != nil {
		e.metrics.HeartbeatTotal.Inc()
	}
	if err := e.settings.SetHeartbeatTimestamp(ctx, time.Now()); err != nil {
		e.log.Warn("cannot persist heartbeat timestamp", zap.Error(err))
	}
	e.log.Debug("heartbeat reported", zap.Int("phone_numbers", len(numbers)))
	return true
}
