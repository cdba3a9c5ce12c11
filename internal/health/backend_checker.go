package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/sms-agent/internal/backend"
)

// BackendChecker 网关后台可达性检查器。
// 后台短暂不可达不影响进程存活，任务会在后续唤醒里重试，
// 所以失败只降级不摘流量。
type BackendChecker struct {
	api *backend.Client
}

// NewBackendChecker 创建后台检查器
func NewBackendChecker(api *backend.Client) *BackendChecker {
	return &BackendChecker{api: api}
}

// Name 返回检查器名称
func (c *BackendChecker) Name() string {
	return "backend"
}

// Check 执行健康检查
func (c *BackendChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.api.ValidateAPIKey(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("backend unreachable: %v", err),
			Latency: time.Since(start),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Latency: time.Since(start),
	}
}
