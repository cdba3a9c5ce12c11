package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/sms-agent/internal/backend"
	"github.com/taoyao-code/sms-agent/internal/settings"
	"github.com/taoyao-code/sms-agent/internal/sim"
)

// ClientFactory 按凭据构造后台客户端。
// 登录要在凭据落库之前验证，所以不能复用全局客户端。
type ClientFactory func(cfg backend.Config) *backend.Client

// Registrar 账号注册与 SIM 同步。
// 负责登录验证、向后台 upsert 手机号、FCM token 刷新和换卡检测。
type Registrar struct {
	settings settings.Repository
	subs     sim.SubscriptionLister
	factory  ClientFactory
	version  string
	timeout  time.Duration
	log      *zap.Logger
}

// NewRegistrar 创建注册器
func NewRegistrar(
	repo settings.Repository,
	subs sim.SubscriptionLister,
	factory ClientFactory,
	clientVersion string,
	timeout time.Duration,
	log *zap.Logger,
) *Registrar {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registrar{
		settings: repo,
		subs:     subs,
		factory:  factory,
		version:  clientVersion,
		timeout:  timeout,
		log:      log,
	}
}

// Login 用给定凭据向后台验证并登录。
// 验证通过才落库，失败不留任何半截状态。
func (g *Registrar) Login(ctx context.Context, serverURL, apiKey string) error {
	api := g.factory(backend.Config{
		BaseURL:       serverURL,
		APIKey:        apiKey,
		ClientVersion: g.version,
		Timeout:       g.timeout,
	})
	if err := api.ValidateAPIKey(ctx); err != nil {
		return fmt.Errorf("validate api key: %w", err)
	}

	if err := g.settings.SetServerURL(ctx, serverURL); err != nil {
		return fmt.Errorf("persist server url: %w", err)
	}
	if err := g.settings.SetAPIKey(ctx, apiKey); err != nil {
		return fmt.Errorf("persist api key: %w", err)
	}
	if err := g.syncSubscriptionNumbers(ctx); err != nil {
		return err
	}
	if err := g.RegisterPhones(ctx, api); err != nil {
		return err
	}

	g.log.Info("login succeeded", zap.String("server_url", serverURL))
	return nil
}

// RegisterPhones 把本机各激活 SIM 的手机号 upsert 到后台，
// 并从返回里记下账号 user_id。
func (g *Registrar) RegisterPhones(ctx context.Context, api *backend.Client) error {
	token := g.settings.FcmToken(ctx)

	registered := 0
	for _, s := range []string{settings.SIM1, settings.SIM2} {
		number := g.settings.PhoneNumber(ctx, s)
		if number == "" || !settings.SimActive(ctx, g.settings, s) {
			continue
		}
		phone, err := api.UpdatePhone(ctx, number, s, token)
		if err != nil {
			return fmt.Errorf("register phone %s: %w", s, err)
		}
		if phone.UserID != "" {
			if err := g.settings.SetUserID(ctx, phone.UserID); err != nil {
				g.log.Warn("cannot persist user id", zap.Error(err))
			}
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("register phones: no active sim with a phone number")
	}
	return nil
}

// RefreshFcmToken 刷新推送 token 并同步给后台。
// 后台同步失败只记日志，token 本地已更新，下次注册会带上。
func (g *Registrar) RefreshFcmToken(ctx context.Context, api *backend.Client, token string) {
	if err := g.settings.SetFcmToken(ctx, token); err != nil {
		g.log.Error("cannot persist fcm token", zap.Error(err))
		return
	}
	if !settings.IsLoggedIn(ctx, g.settings) {
		return
	}
	for _, s := range []string{settings.SIM1, settings.SIM2} {
		number := g.settings.PhoneNumber(ctx, s)
		if number == "" || !settings.SimActive(ctx, g.settings, s) {
			continue
		}
		if _, err := api.UpdateFcmToken(ctx, number, s, token); err != nil {
			g.log.Warn("cannot push fcm token to backend",
				zap.String("sim", s), zap.Error(err))
		}
	}
}

// WatchSIMs 周期检测换卡：平台订阅号码与本地登记号码不一致时
// 重新同步并重注册，让后台路由跟上新号码。
func (g *Registrar) WatchSIMs(ctx context.Context, api *backend.Client, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !settings.IsLoggedIn(ctx, g.settings) {
				continue
			}
			changed, err := g.detectSwap(ctx)
			if err != nil {
				g.log.Warn("cannot check sim swap", zap.Error(err))
				continue
			}
			if !changed {
				continue
			}
			g.log.Info("sim swap detected, re-registering phones")
			if err := g.syncSubscriptionNumbers(ctx); err != nil {
				g.log.Error("cannot sync subscription numbers", zap.Error(err))
				continue
			}
			if err := g.RegisterPhones(ctx, api); err != nil {
				g.log.Error("cannot re-register phones after sim swap", zap.Error(err))
			}
		}
	}
}

// detectSwap 对比平台订阅号码与本地登记号码
func (g *Registrar) detectSwap(ctx context.Context) (bool, error) {
	list, err := g.subs.ActiveSubscriptions(ctx)
	if err != nil {
		return false, err
	}
	for i, s := range []string{settings.SIM1, settings.SIM2} {
		current := ""
		if i < len(list) {
			current = list[i].Number
		}
		if current != "" && current != g.settings.PhoneNumber(ctx, s) {
			return true, nil
		}
	}
	return false, nil
}

// syncSubscriptionNumbers 把平台订阅号码按槽位序写进设置
func (g *Registrar) syncSubscriptionNumbers(ctx context.Context) error {
	list, err := g.subs.ActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("enumerate subscriptions: %w", err)
	}
	for i, s := range []string{settings.SIM1, settings.SIM2} {
		if i >= len(list) || list[i].Number == "" {
			continue
		}
		if err := g.settings.SetPhoneNumber(ctx, s, list[i].Number); err != nil {
			return fmt.Errorf("persist phone number %s: %w", s, err)
		}
	}
	return nil
}
