package settings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	cfgpkg "github.com/taoyao-code/sms-agent/internal/config"
)

// Setting 设置表模型（key/value，一行一字段）
type Setting struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName GORM 表名
func (Setting) TableName() string { return "agent_settings" }

// GormRepo 基于 GORM/PostgreSQL 的持久化设置仓库。
// 读失败按"能力缺失"降级为默认值而不是报错：
// 后台路径里的策略检查不允许因存储抖动而中断。
type GormRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open 建立数据库连接并迁移设置表
func Open(cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*GormRepo, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&Setting{}); err != nil {
		return nil, err
	}
	return NewGormRepo(db, log), nil
}

// NewGormRepo 使用既有 *gorm.DB 创建仓库
func NewGormRepo(db *gorm.DB, log *zap.Logger) *GormRepo {
	if log == nil {
		log = zap.NewNop()
	}
	return &GormRepo{db: db, log: log}
}

// DB 暴露底层连接给健康检查
func (r *GormRepo) DB() *gorm.DB { return r.db }

func (r *GormRepo) get(ctx context.Context, key string) (string, bool) {
	var row Setting
	err := r.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Warn("settings read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return row.Value, true
}

func (r *GormRepo) set(ctx context.Context, key, value string) error {
	row := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

func (r *GormRepo) getBool(ctx context.Context, key string, def bool) bool {
	v, ok := r.get(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (r *GormRepo) APIKey(ctx context.Context) string { v, _ := r.get(ctx, keyAPIKey); return v }

func (r *GormRepo) SetAPIKey(ctx context.Context, k string) error { return r.set(ctx, keyAPIKey, k) }

func (r *GormRepo) ServerURL(ctx context.Context) string { v, _ := r.get(ctx, keyServerURL); return v }

func (r *GormRepo) SetServerURL(ctx context.Context, u string) error {
	return r.set(ctx, keyServerURL, u)
}

func (r *GormRepo) UserID(ctx context.Context) string { v, _ := r.get(ctx, keyUserID); return v }

func (r *GormRepo) SetUserID(ctx context.Context, id string) error { return r.set(ctx, keyUserID, id) }

func (r *GormRepo) FcmToken(ctx context.Context) string { v, _ := r.get(ctx, keyFcmToken); return v }

func (r *GormRepo) SetFcmToken(ctx context.Context, t string) error {
	return r.set(ctx, keyFcmToken, t)
}

func (r *GormRepo) PhoneNumber(ctx context.Context, sim string) string {
	v, _ := r.get(ctx, keyPhoneNumber(sim))
	return v
}

func (r *GormRepo) SetPhoneNumber(ctx context.Context, sim, number string) error {
	return r.set(ctx, keyPhoneNumber(sim), number)
}

func (r *GormRepo) ActiveStatus(ctx context.Context, sim string) bool {
	return r.getBool(ctx, keyActiveStatus(sim), true)
}

func (r *GormRepo) SetActiveStatus(ctx context.Context, sim string, active bool) error {
	return r.set(ctx, keyActiveStatus(sim), strconv.FormatBool(active))
}

func (r *GormRepo) IncomingEnabled(ctx context.Context, sim string) bool {
	return r.getBool(ctx, keyIncomingEnabled(sim), true)
}

func (r *GormRepo) SetIncomingEnabled(ctx context.Context, sim string, on bool) error {
	return r.set(ctx, keyIncomingEnabled(sim), strconv.FormatBool(on))
}

func (r *GormRepo) CallEventsEnabled(ctx context.Context, sim string) bool {
	return r.getBool(ctx, keyCallEventsEnabled(sim), true)
}

func (r *GormRepo) SetCallEventsEnabled(ctx context.Context, sim string, on bool) error {
	return r.set(ctx, keyCallEventsEnabled(sim), strconv.FormatBool(on))
}

func (r *GormRepo) EncryptionKey(ctx context.Context) string {
	v, _ := r.get(ctx, keyEncryptionKey)
	return v
}

func (r *GormRepo) SetEncryptionKey(ctx context.Context, k string) error {
	return r.set(ctx, keyEncryptionKey, k)
}

func (r *GormRepo) EncryptReceivedMessages(ctx context.Context) bool {
	return r.getBool(ctx, keyEncryptReceived, false) && r.EncryptionKey(ctx) != ""
}

func (r *GormRepo) SetEncryptReceivedMessages(ctx context.Context, on bool) error {
	return r.set(ctx, keyEncryptReceived, strconv.FormatBool(on))
}

func (r *GormRepo) HeartbeatTimestamp(ctx context.Context) time.Time {
	v, ok := r.get(ctx, keyHeartbeatAt)
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}

func (r *GormRepo) SetHeartbeatTimestamp(ctx context.Context, at time.Time) error {
	return r.set(ctx, keyHeartbeatAt, strconv.FormatInt(at.UnixMilli(), 10))
}

var _ Repository = (*GormRepo)(nil)
