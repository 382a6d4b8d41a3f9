package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrProductionGuard 生产环境未带 force
var ErrProductionGuard = errors.New("migration: refusing to run in production without force")

// TenantRunner 对 opts.TenantIDs 中每个租户打开连接并执行 Applier，
// 最多 opts.Processes 个租户并行
type TenantRunner struct {
	connect    Connector
	applier    Applier
	production bool
	logger     *zap.Logger
}

type RunnerOption func(*TenantRunner)

func WithProduction(production bool) RunnerOption {
	return func(r *TenantRunner) { r.production = production }
}

func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *TenantRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewTenantRunner(connect Connector, applier Applier, opts ...RunnerOption) *TenantRunner {
	r := &TenantRunner{connect: connect, applier: applier, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 返回 0 表示全部租户成功，1 表示有失败（err 为第一个失败原因）
func (r *TenantRunner) Run(ctx context.Context, opts Options) (int, error) {
	if r.production && !opts.Force {
		return 1, ErrProductionGuard
	}
	processes := opts.Processes
	if processes <= 0 {
		processes = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(processes)
	for _, id := range opts.TenantIDs {
		id := id
		g.Go(func() error {
			return r.runTenant(gctx, id, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return 1, err
	}
	return 0, nil
}

func (r *TenantRunner) runTenant(ctx context.Context, tenantID int, opts Options) error {
	db, release, err := r.connect(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("租户 %d 连接失败: %w", tenantID, err)
	}
	if release != nil {
		defer release()
	}

	if err := r.applier.Apply(ctx, db, opts); err != nil {
		r.logger.Error("tenant migration failed", zap.Int("tenant_id", tenantID), zap.Error(err))
		return fmt.Errorf("租户 %d: %w", tenantID, err)
	}
	r.logger.Info("tenant migration finished", zap.Int("tenant_id", tenantID))
	return nil
}

// Migrations 按 opts.Path 选择目录迁移或注册表迁移
func Migrations(registry *Registry, path *PathApplier) Applier {
	return ApplierFunc(func(ctx context.Context, db *gorm.DB, opts Options) error {
		if opts.Path != "" {
			return path.Apply(ctx, db, opts)
		}
		return registry.Apply(ctx, db, opts)
	})
}
