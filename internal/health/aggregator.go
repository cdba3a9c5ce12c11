package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator 健康检查聚合器
type Aggregator struct {
	checkers []Checker
	mu       sync.RWMutex
}

// NewAggregator 创建聚合器
func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{checkers: checkers}
}

// AddChecker 添加检查器
func (a *Aggregator) AddChecker(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, c)
}

// CheckAll 并发执行所有检查
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make(map[string]CheckResult, len(a.checkers))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range a.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			result := c.Check(ctx)
			resultsMu.Lock()
			results[c.Name()] = result
			resultsMu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

// OverallStatus 计算总体状态：任一 Unhealthy 即 Unhealthy，
// 其次任一 Degraded 即 Degraded。
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	overall := StatusHealthy
	for _, result := range a.CheckAll(ctx) {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// Ready 就绪探针：Degraded 仍算就绪，只有 Unhealthy 才摘流量
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.OverallStatus(ctx) != StatusUnhealthy
}

// Report 完整健康报告
type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Snapshot 生成报告
func (a *Aggregator) Snapshot(ctx context.Context) Report {
	checks := a.CheckAll(ctx)
	overall := StatusHealthy
	for _, result := range checks {
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return Report{Status: overall, Timestamp: time.Now(), Checks: checks}
}
