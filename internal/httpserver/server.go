package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/sms-agent/internal/app"
	cfgpkg "github.com/taoyao-code/sms-agent/internal/config"
	"github.com/taoyao-code/sms-agent/internal/health"
	"github.com/taoyao-code/sms-agent/internal/settings"
)

// Deps 控制 API 依赖集合
type Deps struct {
	Settings  settings.Repository
	Poller    *app.Poller
	Heartbeat *app.HeartbeatEmitter
	Registrar *app.Registrar
	Health    *health.Aggregator
	Metrics   http.Handler
	Log       *zap.Logger
}

// Server 本地控制 API 封装
type Server struct {
	srv *http.Server
}

// New 创建并配置 Gin + HTTP Server，注册控制路由、健康检查与指标
func New(cfg cfgpkg.HTTPConfig, metricsPath string, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if deps.Health == nil || deps.Health.Ready(c.Request.Context()) {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if deps.Metrics != nil {
		r.GET(metricsPath, gin.WrapH(deps.Metrics))
	}

	v1 := r.Group("/v1")
	v1.POST("/wake", handleWake(deps))
	v1.POST("/login", handleLogin(deps))
	v1.POST("/heartbeat", handleHeartbeat(deps))
	v1.GET("/status", handleStatus(deps))

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv}
}

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requestID 给每个请求分配追踪 ID
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// handleWake 唤醒入口。202 先回，处理异步进行：
// 推送通道对时延敏感，任务本身的时延由编排器兜底。
func handleWake(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var w app.Wake
		if err := c.ShouldBindJSON(&w); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wake payload"})
			return
		}
		if w.MessageID == "" && w.HeartbeatID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message_id or heartbeat_id required"})
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			deps.Poller.OnWake(ctx, w)
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	}
}

type loginRequest struct {
	ServerURL string `json:"server_url" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
}

// handleLogin 登录与注册
func handleLogin(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "server_url and api_key required"})
			return
		}
		if err := deps.Registrar.Login(c.Request.Context(), req.ServerURL, req.APIKey); err != nil {
			deps.Log.Warn("login failed", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleHeartbeat 手动触发一次心跳
func handleHeartbeat(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Heartbeat == nil || !deps.Heartbeat.Trigger(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleStatus 当前设备侧状态快照
func handleStatus(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		repo := deps.Settings

		status := gin.H{
			"logged_in": settings.IsLoggedIn(ctx, repo),
			"dual_sim":  settings.IsDualSIM(ctx, repo),
			"sims": gin.H{
				settings.SIM1: gin.H{
					"phone_number": repo.PhoneNumber(ctx, settings.SIM1),
					"active":       settings.SimActive(ctx, repo, settings.SIM1),
					"incoming":     repo.IncomingEnabled(ctx, settings.SIM1),
					"missed_calls": repo.CallEventsEnabled(ctx, settings.SIM1),
				},
				settings.SIM2: gin.H{
					"phone_number": repo.PhoneNumber(ctx, settings.SIM2),
					"active":       settings.SimActive(ctx, repo, settings.SIM2),
					"incoming":     repo.IncomingEnabled(ctx, settings.SIM2),
					"missed_calls": repo.CallEventsEnabled(ctx, settings.SIM2),
				},
			},
			"encrypt_received": repo.EncryptReceivedMessages(ctx),
		}
		if at := repo.HeartbeatTimestamp(ctx); !at.IsZero() {
			status["last_heartbeat_at"] = at.UTC().Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, status)
	}
}
