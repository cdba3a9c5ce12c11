package sim

import (
	"context"

	"go.uber.org/zap"

	"github.com/taoyao-code/sms-agent/internal/settings"
)

// Selector 逻辑 SIM 选择器
type Selector string

const (
	SIM1    Selector = settings.SIM1
	SIM2    Selector = settings.SIM2
	Default Selector = "DEFAULT"
)

// ParseSelector 规范化后台下发的 sim 字段，未知值落到 DEFAULT
func ParseSelector(s string) Selector {
	switch s {
	case string(SIM1):
		return SIM1
	case string(SIM2):
		return SIM2
	default:
		return Default
	}
}

// Subscription 平台活跃订阅（按槽位序）
type Subscription struct {
	ID     int
	Slot   int
	Number string
}

// SubscriptionLister 平台订阅枚举能力。
// 无权限枚举时返回 error，解析器据此降级而不是上抛。
type SubscriptionLister interface {
	ActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	DefaultSubscriptionID(ctx context.Context) int
}

// Resolver 把逻辑 SIM 选择器映射到具体订阅。
// 槽位到 SIM1/SIM2 的映射依赖平台订阅表顺序，跨重启不保证稳定，
// 按 best-effort 处理。
type Resolver struct {
	subs     SubscriptionLister
	settings settings.Repository
	log      *zap.Logger
}

// NewResolver 创建解析器
func NewResolver(subs SubscriptionLister, repo settings.Repository, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{subs: subs, settings: repo, log: log}
}

// Resolve 返回选择器对应的订阅 ID。
// SIM1/SIM2 在订阅数不足或无枚举权限时回退到平台默认发送路径。
func (r *Resolver) Resolve(ctx context.Context, sel Selector) int {
	if sel == Default {
		return r.subs.DefaultSubscriptionID(ctx)
	}

	list, err := r.subs.ActiveSubscriptions(ctx)
	if err != nil {
		// 能力检查而非错误路径
		r.log.Warn("cannot enumerate subscriptions, falling back to default",
			zap.String("selector", string(sel)), zap.Error(err))
		return r.subs.DefaultSubscriptionID(ctx)
	}

	switch {
	case sel == SIM1 && len(list) > 0:
		return list[0].ID
	case sel == SIM2 && len(list) > 1:
		return list[1].ID
	default:
		return r.subs.DefaultSubscriptionID(ctx)
	}
}

// IsDualSIM 至少两个活跃订阅且两个槽位都登记了非空手机号
func (r *Resolver) IsDualSIM(ctx context.Context) bool {
	list, err := r.subs.ActiveSubscriptions(ctx)
	if err != nil {
		r.log.Warn("cannot check dual sim, no permission", zap.Error(err))
		return false
	}
	return len(list) > 1 && settings.IsDualSIM(ctx, r.settings)
}

// IsActive 该 SIM 是否允许发送（SIM2 额外要求双卡生效）
func (r *Resolver) IsActive(ctx context.Context, sel Selector) bool {
	switch sel {
	case SIM1, SIM2:
		return settings.SimActive(ctx, r.settings, string(sel))
	default:
		return settings.AnySimActive(ctx, r.settings)
	}
}
