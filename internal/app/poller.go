package app

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taoyao-code/sms-agent/internal/metrics"
	"github.com/taoyao-code/sms-agent/internal/settings"
)

const wakeClaimPrefix = "agent:wake:claim:"

// Wake 推送唤醒载荷。
// 带心跳标记键的唤醒只触发心跳，永不领取任务。
type Wake struct {
	HeartbeatID string `json:"heartbeat_id"`
	MessageID   string `json:"message_id"`
}

// Poller 任务轮询器：外部唤醒进来时最多领取一个任务交给编排器。
// Redis SetNX 作为短 TTL 的重复唤醒护栏，不是持久化队列——
// 进程在发射中途被杀时任务静默丢失，靠后台的任务过期机制再浮现。
type Poller struct {
	settings  settings.Repository
	orch      *Orchestrator
	heartbeat *HeartbeatEmitter
	redis     *redis.Client
	claimTTL  time.Duration
	interval  time.Duration
	metrics   *metrics.AppMetrics
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewPoller 创建任务轮询器。redis 允许为 nil（无护栏、不去重）。
func NewPoller(
	repo settings.Repository,
	orch *Orchestrator,
	heartbeat *HeartbeatEmitter,
	rdb *redis.Client,
	claimTTL, interval time.Duration,
	m *metrics.AppMetrics,
	log *zap.Logger,
) *Poller {
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		settings:  repo,
		orch:      orch,
		heartbeat: heartbeat,
		redis:     rdb,
		claimTTL:  claimTTL,
		interval:  interval,
		metrics:   m,
		log:       log,
		pending:   make(map[string]struct{}),
	}
}

// OnWake 处理一次外部唤醒。
// 未登录时 no-op；心跳标记只触发心跳；每次唤醒最多领取一个任务。
func (p *Poller) OnWake(ctx context.Context, w Wake) {
	if !settings.IsLoggedIn(ctx, p.settings) {
		p.log.Warn("wake ignored: user is not logged in")
		return
	}

	if w.HeartbeatID != "" {
		if p.metrics != nil {
			p.metrics.WakeTotal.WithLabelValues("heartbeat").Inc()
		}
		p.log.Debug("heartbeat ping received", zap.String("heartbeat_id", w.HeartbeatID))
		if p.heartbeat != nil {
			p.heartbeat.Trigger(ctx)
		}
		return
	}

	if w.MessageID == "" {
		p.log.Warn("wake payload carries neither a heartbeat marker nor a message id")
		return
	}

	if !p.claim(ctx, w.MessageID) {
		if p.metrics != nil {
			p.metrics.WakeTotal.WithLabelValues("duplicate").Inc()
		}
		p.log.Debug("wake already claimed", zap.String("message_id", w.MessageID))
		return
	}
	if p.metrics != nil {
		p.metrics.WakeTotal.WithLabelValues("job").Inc()
	}

	p.dispatch(ctx, w.MessageID)
}

// Run 周期兜底：重试因暂时性失败搁置的任务。
// 有意不做持久化，进程死亡即丢失，由后台的任务过期机制再浮现。
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !settings.IsLoggedIn(ctx, p.settings) {
		return
	}

	// 每个周期最多重试一个搁置任务，保持每次唤醒单任务的约束
	id, ok := p.takePending()
	if !ok {
		return
	}
	p.log.Info("retrying deferred job", zap.String("message_id", id))
	p.dispatch(ctx, id)
}

func (p *Poller) dispatch(ctx context.Context, messageID string) {
	switch p.orch.Handle(ctx, messageID) {
	case OutcomeRetry:
		p.deferRetry(messageID)
	default:
		p.forget(messageID)
	}
}

// claim SetNX 护栏：同一消息的重复唤醒在 TTL 内只放行一次
func (p *Poller) claim(ctx context.Context, messageID string) bool {
	if p.redis == nil {
		return true
	}
	ok, err := p.redis.SetNX(ctx, wakeClaimPrefix+messageID, "1", p.claimTTL).Result()
	if err != nil {
		// 护栏不可用时放行，宁可偶发重复也不丢任务
		p.log.Warn("wake claim check failed, proceeding", zap.Error(err))
		return true
	}
	return ok
}

func (p *Poller) deferRetry(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[messageID] = struct{}{}
}

func (p *Poller) forget(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, messageID)
}

func (p *Poller) takePending() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.pending {
		delete(p.pending, id)
		return id, true
	}
	return "", false
}
