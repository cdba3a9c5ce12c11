package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChecker 唤醒去重存储健康检查器。
// Redis 不可用时唤醒去重降级为"全都处理"，进程仍可服务，
// 所以这里报告 Degraded 而不是 Unhealthy。
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker 创建 Redis 健康检查器
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name 返回检查器名称
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check 执行健康检查
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.client.PoolStats()

	status := StatusHealthy
	message := "ok"
	if stats.Timeouts > 0 {
		status = StatusDegraded
		message = "pool timeouts observed"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"total_conns": stats.TotalConns,
			"idle_conns":  stats.IdleConns,
			"stale_conns": stats.StaleConns,
			"hits":        stats.Hits,
			"misses":      stats.Misses,
			"timeouts":    stats.Timeouts,
		},
		Latency: time.Since(start),
	}
}
