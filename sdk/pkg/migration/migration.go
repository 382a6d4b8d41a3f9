// Package migration 对单个或多个租户执行迁移和数据填充，供连接管理器的 Migrate/Seed 调用
package migration

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Migration 迁移版本记录表，每个租户库（或前缀）一张
type Migration struct {
	Version   string    `gorm:"primaryKey;size:191"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (Migration) TableName() string {
	return "tenant_migrations"
}

// Options 对应一次 tenancy:migrate / tenancy:db:seed 调用
type Options struct {
	TenantIDs []int
	Processes int    // 并行租户数，<=0 视为 1
	Force     bool   // 生产环境必须为 true
	Path      string // 迁移 SQL 目录，空时执行注册的版本
	Class     string // 填充类名，空时为 DefaultSeeder
}

// Runner 执行迁移或填充，返回退出码，0 表示成功
type Runner interface {
	Run(ctx context.Context, opts Options) (int, error)
}

type RunnerFunc func(ctx context.Context, opts Options) (int, error)

func (f RunnerFunc) Run(ctx context.Context, opts Options) (int, error) {
	return f(ctx, opts)
}

// Connector 打开租户连接，release 在租户处理完成后调用
type Connector func(ctx context.Context, tenantID int) (db *gorm.DB, release func(), err error)

// Applier 在一个租户连接上执行具体工作
type Applier interface {
	Apply(ctx context.Context, db *gorm.DB, opts Options) error
}

type ApplierFunc func(ctx context.Context, db *gorm.DB, opts Options) error

func (f ApplierFunc) Apply(ctx context.Context, db *gorm.DB, opts Options) error {
	return f(ctx, db, opts)
}
