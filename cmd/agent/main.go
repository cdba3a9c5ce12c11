package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/sms-agent/internal/app"
	"github.com/taoyao-code/sms-agent/internal/backend"
	cfgpkg "github.com/taoyao-code/sms-agent/internal/config"
	"github.com/taoyao-code/sms-agent/internal/health"
	"github.com/taoyao-code/sms-agent/internal/httpserver"
	"github.com/taoyao-code/sms-agent/internal/logging"
	"github.com/taoyao-code/sms-agent/internal/metrics"
	"github.com/taoyao-code/sms-agent/internal/radio"
	"github.com/taoyao-code/sms-agent/internal/settings"
	"github.com/taoyao-code/sms-agent/internal/sim"
)

func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	appMetrics := metrics.NewAppMetrics(reg)
	metricsHandler := metrics.Handler(reg)

	// 4) 设置仓库：有数据库走持久化，没有退化为进程内存
	var repo settings.Repository
	var gormRepo *settings.GormRepo
	if cfg.Database.DSN != "" {
		gormRepo, err = settings.Open(cfg.Database, log)
		if err != nil {
			log.Fatal("cannot open settings store", zap.Error(err))
		}
		repo = gormRepo
	} else {
		log.Warn("no database configured, settings will not survive restarts")
		repo = settings.NewMemory()
	}

	// 5) 唤醒去重护栏（可选）
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// 6) 后台客户端：已登录用落库凭据，否则用配置引导
	bootCtx := context.Background()
	serverURL := repo.ServerURL(bootCtx)
	if serverURL == "" {
		serverURL = cfg.Backend.BaseURL
	}
	apiKey := repo.APIKey(bootCtx)
	if apiKey == "" {
		apiKey = cfg.Backend.APIKey
	}
	api := backend.New(backend.Config{
		BaseURL:       serverURL,
		APIKey:        apiKey,
		ClientVersion: cfg.Backend.ClientVersion,
		Timeout:       cfg.Backend.Timeout,
	}, log)

	// 7) 发射路径：回执总线 + 发射器 + 节流
	bus := radio.NewBus(64, log)
	var transmitter radio.Transmitter
	switch cfg.Radio.Driver {
	case "", "loopback":
		transmitter = radio.NewLoopback(bus, cfg.Radio.SinglePartLimit, log)
	default:
		log.Fatal("unknown radio driver", zap.String("driver", cfg.Radio.Driver))
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Radio.SendsPerMinute/60), 1)

	reasons := radio.DefaultReasonMap()
	if cfg.Radio.ReasonMapPath != "" {
		reasons, err = radio.LoadReasonMap(cfg.Radio.ReasonMapPath)
		if err != nil {
			log.Fatal("cannot load reason map", zap.Error(err))
		}
	}

	// 8) SIM 解析：回环部署用固定订阅表
	lister := &sim.StaticSubscriptions{
		Subs: []sim.Subscription{
			{ID: 1, Slot: 0, Number: repo.PhoneNumber(bootCtx, settings.SIM1)},
			{ID: 2, Slot: 1, Number: repo.PhoneNumber(bootCtx, settings.SIM2)},
		},
		DefaultID: 1,
	}
	resolver := sim.NewResolver(lister, repo, log)

	// 9) 业务组件
	orch := app.NewOrchestrator(repo, api, resolver, transmitter, bus, limiter, appMetrics, log)
	listener := app.NewListener(repo, api, bus, reasons, appMetrics, log)
	heartbeat := app.NewHeartbeatEmitter(repo, api, nil, cfg.Heartbeat.Interval, appMetrics, log)
	poller := app.NewPoller(repo, orch, heartbeat, rdb, cfg.Poll.ClaimTTL, cfg.Poll.Interval, appMetrics, log)
	registrar := app.NewRegistrar(repo, lister, func(c backend.Config) *backend.Client {
		c.ClientVersion = cfg.Backend.ClientVersion
		return backend.New(c, log)
	}, cfg.Backend.ClientVersion, cfg.Backend.Timeout, log)

	// 10) 健康检查
	aggregator := health.NewAggregator(health.NewBackendChecker(api))
	if gormRepo != nil {
		aggregator.AddChecker(health.NewDatabaseChecker(gormRepo.DB()))
	}
	if rdb != nil {
		aggregator.AddChecker(health.NewRedisChecker(rdb))
	}

	// 11) 本地控制 API
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, httpserver.Deps{
		Settings:  repo,
		Poller:    poller,
		Heartbeat: heartbeat,
		Registrar: registrar,
		Health:    aggregator,
		Metrics:   metricsHandler,
		Log:       log,
	})

	// 后台循环
	runCtx, stop := context.WithCancel(context.Background())
	go listener.Run(runCtx)
	go heartbeat.Run(runCtx)
	go poller.Run(runCtx)
	go registrar.WatchSIMs(runCtx, api, time.Hour)

	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("sms agent started", zap.String("addr", cfg.HTTP.Addr))

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	if rdb != nil {
		_ = rdb.Close()
	}
}
