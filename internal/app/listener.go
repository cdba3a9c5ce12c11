package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/taoyao-code/sms-agent/internal/backend"
	"github.com/taoyao-code/sms-agent/internal/metrics"
	"github.com/taoyao-code/sms-agent/internal/radio"
	"github.com/taoyao-code/sms-agent/internal/segment"
	"github.com/taoyao-code/sms-agent/internal/settings"
)

// 投递失败的固定原因
const reasonNotDelivered = "CANNOT BE DELIVERED"

// Listener 回执监听器：回执总线的唯一消费者。
// 只有末段（标识即裸 parentId）的回执才代表整条消息的逻辑状态，
// 中间段的完成一律不上报。
type Listener struct {
	settings settings.Repository
	api      *backend.Client
	bus      *radio.Bus
	reasons  *radio.ReasonMap
	metrics  *metrics.AppMetrics
	log      *zap.Logger
}

// NewListener 创建回执监听器
func NewListener(
	repo settings.Repository,
	api *backend.Client,
	bus *radio.Bus,
	reasons *radio.ReasonMap,
	m *metrics.AppMetrics,
	log *zap.Logger,
) *Listener {
	if reasons == nil {
		reasons = radio.DefaultReasonMap()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{settings: repo, api: api, bus: bus, reasons: reasons, metrics: m, log: log}
}

// Run 消费回执直到 ctx 结束
func (l *Listener) Run(ctx context.Context) {
	l.log.Info("completion listener started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info("completion listener stopped")
			return
		case c := <-l.bus.Completions():
			l.Handle(ctx, c)
		}
	}
}

// Handle 处理单个回执信号
func (l *Listener) Handle(ctx context.Context, c radio.Completion) {
	if l.metrics != nil {
		result := "ok"
		if !c.OK() {
			result = "error"
		}
		l.metrics.CompletionTotal.WithLabelValues(c.Kind.String(), result).Inc()
	}

	if !l.valid(ctx, c.SegmentID) {
		return
	}

	// 事件时间戳取回执观察时刻，不取上报时刻
	switch {
	case c.Kind == radio.KindSent && c.OK():
		l.report(ctx, backend.EventSent, func() bool {
			return l.api.SendSentEvent(ctx, c.SegmentID, c.At)
		})
	case c.Kind == radio.KindSent:
		reason := l.reasons.Reason(c.Result)
		l.log.Info("message not sent", zap.String("message_id", c.SegmentID), zap.String("reason", reason))
		l.report(ctx, backend.EventFailed, func() bool {
			return l.api.SendFailedEvent(ctx, c.SegmentID, c.At, reason)
		})
	case c.OK():
		l.report(ctx, backend.EventDelivered, func() bool {
			return l.api.SendDeliveredEvent(ctx, c.SegmentID, c.At)
		})
	default:
		l.log.Info("message not delivered", zap.String("message_id", c.SegmentID))
		l.report(ctx, backend.EventFailed, func() bool {
			return l.api.SendFailedEvent(ctx, c.SegmentID, c.At, reasonNotDelivered)
		})
	}
}

func (l *Listener) report(ctx context.Context, event string, fn func() bool) {
	result := "ok"
	if !fn() {
		result = "error"
	}
	if l.metrics != nil {
		l.metrics.EventPushTotal.WithLabelValues(event, result).Inc()
	}
}

// valid 上报资格门：
// 标识非空、无多段后缀、用户仍在登录态、至少一个 SIM 仍然激活。
// 回执可能在退出登录/停用之后才到达，也可能属于不该单独上报的中间段。
func (l *Listener) valid(ctx context.Context, messageID string) bool {
	if messageID == "" {
		l.log.Error("cannot handle completion because the message id is empty")
		return false
	}

	if !segment.IsParentID(messageID) {
		l.log.Debug("completion is for a multipart segment, skipping",
			zap.String("segment_id", messageID))
		return false
	}

	if !settings.IsLoggedIn(ctx, l.settings) {
		l.log.Warn("cannot handle completion because the user is not logged in",
			zap.String("message_id", messageID))
		return false
	}

	if !settings.AnySimActive(ctx, l.settings) {
		l.log.Warn("cannot handle completion because the user is not active",
			zap.String("message_id", messageID))
		return false
	}

	return true
}
