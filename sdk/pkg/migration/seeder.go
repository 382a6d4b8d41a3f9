package migration

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// DefaultSeeder 未指定 Class 时执行的填充
const DefaultSeeder = "DatabaseSeeder"

type SeedFunc func(ctx context.Context, db *gorm.DB) error

// Seeders 填充注册表：类名 → 填充函数
type Seeders struct {
	mu    sync.RWMutex
	seeds map[string]SeedFunc
}

func NewSeeders() *Seeders {
	return &Seeders{seeds: make(map[string]SeedFunc)}
}

func (s *Seeders) Register(class string, fn SeedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeds[class] = fn
}

// Apply 执行 opts.Class 对应的填充，在一个事务里完成
func (s *Seeders) Apply(ctx context.Context, db *gorm.DB, opts Options) error {
	class := opts.Class
	if class == "" {
		class = DefaultSeeder
	}
	s.mu.RLock()
	fn, ok := s.seeds[class]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("填充类 %s 未注册", class)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}
