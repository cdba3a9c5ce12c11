package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/sms-agent/internal/backend"
	"github.com/taoyao-code/sms-agent/internal/cryptox"
	"github.com/taoyao-code/sms-agent/internal/metrics"
	"github.com/taoyao-code/sms-agent/internal/radio"
	"github.com/taoyao-code/sms-agent/internal/segment"
	"github.com/taoyao-code/sms-agent/internal/settings"
	"github.com/taoyao-code/sms-agent/internal/sim"
)

// Outcome 单次任务处理结果
type Outcome int

const (
	// OutcomeSuccess 发射已发出，后续由回执异步驱动
	OutcomeSuccess Outcome = iota
	// OutcomeRetry 暂时性失败，等外部唤醒重投递后再试
	OutcomeRetry
	// OutcomeTerminal 终态失败，本地不再重试
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	default:
		return "terminal"
	}
}

// 策略失败原因：前置条件不会自愈，只能由用户动作解除
const (
	reasonUserInactive     = "user is not active"
	reasonOutgoingDisabled = "Outgoing messages have been disabled"
)

// Orchestrator 发送编排器：对一个任务执行
// 资格检查 → 解密检查 → 领取 → 分段 → 发射 的状态机。
type Orchestrator struct {
	settings settings.Repository
	api      *backend.Client
	resolver *sim.Resolver
	radio    radio.Transmitter
	bus      *radio.Bus
	limiter  *rate.Limiter
	metrics  *metrics.AppMetrics
	log      *zap.Logger
}

// NewOrchestrator 创建发送编排器
func NewOrchestrator(
	repo settings.Repository,
	api *backend.Client,
	resolver *sim.Resolver,
	transmitter radio.Transmitter,
	bus *radio.Bus,
	limiter *rate.Limiter,
	m *metrics.AppMetrics,
	log *zap.Logger,
) *Orchestrator {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		settings: repo,
		api:      api,
		resolver: resolver,
		radio:    transmitter,
		bus:      bus,
		limiter:  limiter,
		metrics:  m,
		log:      log,
	}
}

// Handle 处理一个后台任务。
// 返回 Success 只意味着发射无异常发出，真正的送达/失败
// 由回执监听器异步上报。
func (o *Orchestrator) Handle(ctx context.Context, jobID string) Outcome {
	outcome := o.handle(ctx, jobID)
	if o.metrics != nil {
		o.metrics.SendTotal.WithLabelValues(outcome.String()).Inc()
	}
	return outcome
}

func (o *Orchestrator) handle(ctx context.Context, jobID string) Outcome {
	log := o.log.With(zap.String("message_id", jobID))

	// 1) 资格检查：凭据与全局发送开关。
	// 不会自愈，报 FAILED 后终态，绝不 Retry。
	if !settings.IsLoggedIn(ctx, o.settings) || !settings.AnySimActive(ctx, o.settings) {
		log.Warn("claim check failed: user is not active")
		o.api.SendFailedEvent(ctx, jobID, time.Now().UTC(), reasonUserInactive)
		return OutcomeTerminal
	}

	// 2) 领取：查无/解码失败无从上报，直接终态；
	// 传输失败则交给外部重投递。
	msg, err := o.api.GetOutstandingMessage(ctx, jobID)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) || errors.Is(err, backend.ErrInvalidPayload) {
			log.Warn("no outstanding message to claim", zap.Error(err))
			return OutcomeTerminal
		}
		log.Warn("cannot fetch outstanding message", zap.Error(err))
		return OutcomeRetry
	}

	// 3) 目标 SIM 的发送开关
	selector := sim.ParseSelector(msg.SIM)
	if !o.resolver.IsActive(ctx, selector) {
		log.Warn("target sim is disabled", zap.String("sim", msg.SIM))
		o.api.SendFailedEvent(ctx, msg.ID, time.Now().UTC(), reasonOutgoingDisabled)
		return OutcomeTerminal
	}

	// 4) 解密检查：密文任务在分段之前整体解密，失败对整条消息终态
	content := msg.Content
	if msg.Encrypted {
		key := o.settings.EncryptionKey(ctx)
		if key == "" {
			log.Warn("encrypted message but no encryption key configured")
			o.api.SendFailedEvent(ctx, msg.ID, time.Now().UTC(), "encryption key is not configured on the mobile phone")
			return OutcomeTerminal
		}
		plaintext, err := cryptox.Decrypt(key, content)
		if err != nil {
			log.Warn("cannot decrypt message content", zap.Error(err))
			o.api.SendFailedEvent(ctx, msg.ID, time.Now().UTC(), "cannot decrypt message content: "+err.Error())
			return OutcomeTerminal
		}
		content = plaintext
	}

	// 5) 分段：平台拆分能力注入，内部异常已由 Split 降级为单段
	segs := segment.Split(msg.ID, content, func(body string) []string {
		parts, err := o.radio.MessageParts(ctx, body)
		if err != nil {
			panic(err)
		}
		return parts
	})
	if o.metrics != nil {
		o.metrics.SegmentsGauge.Observe(float64(len(segs)))
	}

	// 6) 发射前登记回执期望，覆盖上一轮尝试的登记，
	// 防止陈旧回执被错误归因。
	ids := segment.IDs(segs)
	o.bus.Expect(msg.ID, ids)

	if err := o.limiter.Wait(ctx); err != nil {
		log.Warn("rate limiter interrupted", zap.Error(err))
		return OutcomeRetry
	}

	subscriptionID := o.resolver.Resolve(ctx, selector)

	// 7) 发射。平台边界抛错按终态 FAILED 上报，
	// 本系统不自行重发无线呼叫。
	if len(segs) == 1 {
		err = o.radio.SendTextMessage(ctx, subscriptionID, msg.Contact, segs[0].Body, ids[0])
		if o.metrics != nil {
			o.metrics.TransmitTotal.WithLabelValues("single").Inc()
		}
	} else {
		err = o.radio.SendMultipartTextMessage(ctx, subscriptionID, msg.Contact, segment.Bodies(segs), ids)
		if o.metrics != nil {
			o.metrics.TransmitTotal.WithLabelValues("multipart").Inc()
		}
	}
	if err != nil {
		log.Error("radio transmit failed", zap.Error(err))
		o.api.SendFailedEvent(ctx, msg.ID, time.Now().UTC(), err.Error())
		return OutcomeTerminal
	}

	log.Info("transmit issued", zap.Int("segments", len(segs)), zap.String("sim", msg.SIM))
	return OutcomeSuccess
}
