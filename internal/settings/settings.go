package settings

import (
	"context"
	"time"
)

// SIM 槽位标签。DEFAULT 不是槽位，只用于发送路径选择。
const (
	SIM1 = "SIM1"
	SIM2 = "SIM2"
)

// Repository 设备级设置仓库。
// 按字段收敛为显式接口并通过构造注入，
// 各组件不直接触碰全局状态。
// 写入为 last-write-wins，不做跨字段事务。
type Repository interface {
	APIKey(ctx context.Context) string
	SetAPIKey(ctx context.Context, key string) error

	ServerURL(ctx context.Context) string
	SetServerURL(ctx context.Context, url string) error

	UserID(ctx context.Context) string
	SetUserID(ctx context.Context, id string) error

	FcmToken(ctx context.Context) string
	SetFcmToken(ctx context.Context, token string) error

	PhoneNumber(ctx context.Context, sim string) string
	SetPhoneNumber(ctx context.Context, sim, number string) error

	// ActiveStatus 该 SIM 的发送开关（缺省开启）
	ActiveStatus(ctx context.Context, sim string) bool
	SetActiveStatus(ctx context.Context, sim string, active bool) error

	// IncomingEnabled 该 SIM 的来信转发开关（缺省开启）
	IncomingEnabled(ctx context.Context, sim string) bool
	SetIncomingEnabled(ctx context.Context, sim string, on bool) error

	// CallEventsEnabled 该 SIM 的未接来电上报开关（缺省开启）
	CallEventsEnabled(ctx context.Context, sim string) bool
	SetCallEventsEnabled(ctx context.Context, sim string, on bool) error

	EncryptionKey(ctx context.Context) string
	SetEncryptionKey(ctx context.Context, key string) error

	EncryptReceivedMessages(ctx context.Context) bool
	SetEncryptReceivedMessages(ctx context.Context, on bool) error

	HeartbeatTimestamp(ctx context.Context) time.Time
	SetHeartbeatTimestamp(ctx context.Context, at time.Time) error
}

// IsLoggedIn 凭据有效：API key 已配置且 SIM1 已注册手机号
func IsLoggedIn(ctx context.Context, r Repository) bool {
	return r.APIKey(ctx) != "" && r.PhoneNumber(ctx, SIM1) != ""
}

// IsDualSIM 双卡特性只在两个槽位都登记了手机号时开启
func IsDualSIM(ctx context.Context, r Repository) bool {
	return r.PhoneNumber(ctx, SIM1) != "" && r.PhoneNumber(ctx, SIM2) != ""
}

// SimActive 计算某 SIM 的有效发送开关。
// SIM2 只有在双卡生效时才可能激活。
func SimActive(ctx context.Context, r Repository, sim string) bool {
	active := r.ActiveStatus(ctx, sim)
	if sim == SIM2 {
		active = active && IsDualSIM(ctx, r)
	}
	return active
}

// AnySimActive 全局是否还有可用的发送路径
func AnySimActive(ctx context.Context, r Repository) bool {
	return SimActive(ctx, r, SIM1) || SimActive(ctx, r, SIM2)
}
