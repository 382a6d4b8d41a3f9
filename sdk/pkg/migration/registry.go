package migration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MigrationFunc 迁移函数签名
type MigrationFunc func(db *gorm.DB, version string) error

const createMigrationTable = "CREATE TABLE IF NOT EXISTS tenant_migrations (version VARCHAR(191) NOT NULL PRIMARY KEY, applied_at TIMESTAMP NULL)"

// Registry 迁移注册表：版本号 → 迁移函数，按版本号字典序执行
type Registry struct {
	mu       sync.RWMutex
	versions map[string]MigrationFunc
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{versions: make(map[string]MigrationFunc), logger: logger}
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// GetRegistry 全局注册表，迁移文件在 init() 中注册
func GetRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry(nil)
	})
	return defaultRegistry
}

// RegisterVersion 注册迁移版本
func (r *Registry) RegisterVersion(version string, fn MigrationFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[version] = fn
}

// GetRegisteredVersions 获取所有已注册版本（排序后）
func (r *Registry) GetRegisteredVersions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := make([]string, 0, len(r.versions))
	for v := range r.versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Apply 执行尚未应用的版本，每个版本一个事务
func (r *Registry) Apply(ctx context.Context, db *gorm.DB, _ Options) error {
	versions := r.GetRegisteredVersions()
	return applyVersions(ctx, db, r.logger, versions, func(version string) MigrationFunc {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.versions[version]
	})
}

func applyVersions(ctx context.Context, db *gorm.DB, logger *zap.Logger, versions []string, lookup func(string) MigrationFunc) error {
	db = db.WithContext(ctx)
	if err := db.Exec(createMigrationTable).Error; err != nil {
		return fmt.Errorf("创建 tenant_migrations 表失败: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, version := range versions {
		if applied[version] {
			logger.Debug("migration already applied", zap.String("version", version))
			continue
		}
		fn := lookup(version)
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := fn(tx, version); err != nil {
				return err
			}
			return tx.Create(&Migration{Version: version}).Error
		})
		if err != nil {
			return fmt.Errorf("版本 %s 迁移失败: %w", version, err)
		}
		logger.Info("migration applied", zap.String("version", version))
	}
	return nil
}

func appliedVersions(db *gorm.DB) (map[string]bool, error) {
	var records []Migration
	if err := db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("读取 tenant_migrations 失败: %w", err)
	}
	applied := make(map[string]bool, len(records))
	for _, rec := range records {
		applied[rec.Version] = true
	}
	return applied, nil
}
