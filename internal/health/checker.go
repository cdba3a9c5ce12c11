package health

import (
	"context"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"   // 健康
	StatusDegraded  Status = "degraded"  // 降级（部分能力受损但仍可服务）
	StatusUnhealthy Status = "unhealthy" // 不健康（无法服务）
)

// CheckResult 单项检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 健康检查器接口
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// CheckerFunc 函数适配器
type CheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) CheckResult
}

// Name 返回检查器名称
func (f CheckerFunc) Name() string { return f.CheckerName }

// Check 执行健康检查
func (f CheckerFunc) Check(ctx context.Context) CheckResult { return f.Fn(ctx) }
