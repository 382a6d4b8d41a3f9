// Package runtime 管理命名连接槽：绑定租户、重建物理连接、迁移和填充
package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/migration"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

const (
	DefaultTenantName = "tenant"
	// MigrationConnectionName 迁移时临时使用的连接名，不占用 tenant 槽
	MigrationConnectionName = "tenant-migration"
)

var errNoRunner = errors.New("no runner configured")

// Generator produces the connection configuration of a tenant.
type Generator interface {
	Generate(ctx context.Context, t *tenant.Tenant) (*tenancy.Generated, error)
}

// Manager owns the named connection registry. Slots change only through
// Bind, Unbind and Close.
type Manager struct {
	mu        sync.Mutex
	conns     map[string]*gorm.DB
	store     ConfigStore
	opener    Opener
	generator Generator
	resolver  tenant.Resolver
	sink      tenancy.Sink
	migrator  migration.Runner
	seeder    migration.Runner
	logger    *zap.Logger

	systemName  string
	tenantName  string
	defaultName string
}

type Option func(*Manager)

func WithSystemName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.systemName = name
		}
	}
}

func WithTenantName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.tenantName = name
		}
	}
}

// WithDefaultConnection 对应 tenancy.defaultConnection
func WithDefaultConnection(name string) Option {
	return func(m *Manager) { m.defaultName = name }
}

func WithSink(s tenancy.Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithResolver is needed by TenantConnector to find tenants by id.
func WithResolver(r tenant.Resolver) Option {
	return func(m *Manager) { m.resolver = r }
}

func WithMigrator(r migration.Runner) Option {
	return func(m *Manager) { m.migrator = r }
}

func WithSeeder(r migration.Runner) Option {
	return func(m *Manager) { m.seeder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(store ConfigStore, opener Opener, generator Generator, opts ...Option) *Manager {
	m := &Manager{
		conns:      make(map[string]*gorm.DB),
		store:      store,
		opener:     opener,
		generator:  generator,
		sink:       tenancy.NopSink(),
		logger:     zap.NewNop(),
		systemName: tenancy.DefaultSystemName,
		tenantName: DefaultTenantName,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) SystemName() string { return m.systemName }

func (m *Manager) TenantName() string { return m.tenantName }

// Default 应用默认连接名，未配置时为系统连接
func (m *Manager) Default() string {
	if m.defaultName != "" {
		return m.defaultName
	}
	return m.systemName
}

func (m *Manager) slot(name string) string {
	if name == "" {
		return m.tenantName
	}
	return name
}

// Bind points the slot ("" means the tenant slot) at t. The configuration is
// generated again on every call. When the slot already serves t and the
// configuration did not change, the live connection is kept and only the
// ConnectionSet event is emitted. Otherwise the new physical connection is
// opened before anything is swapped, so a failed open leaves the slot as it
// was. A nil t clears the slot.
func (m *Manager) Bind(ctx context.Context, slot string, t *tenant.Tenant) error {
	name := m.slot(slot)

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.store.Get(name)
	if t == nil {
		if existing.Empty() && m.conns[name] == nil {
			m.sink.Emit(ctx, tenancy.ConnectionSet{Connection: name, Changed: false})
			return nil
		}
		old := m.conns[name]
		m.store.Delete(name)
		delete(m.conns, name)
		m.closeQuietly(name, old)

		m.logger.Info("connection cleared",
			zap.String("connection", name),
			zap.String("from", existing.UUID()))
		m.sink.Emit(ctx, tenancy.ConnectionSet{Connection: name, Changed: true})
		return nil
	}

	gen, err := m.generator.Generate(ctx, t)
	if err != nil {
		return err
	}
	next := gen.Config
	changed := existing.UUID() != t.UUID

	if !changed && next.Equal(existing) {
		m.sink.Emit(ctx, tenancy.ConnectionSet{Tenant: t, Connection: name, Changed: false})
		return nil
	}

	db, err := m.opener.Open(ctx, name, next)
	if err != nil {
		return fmt.Errorf("bind %s to tenant %s: %w", name, t.UUID, err)
	}

	old := m.conns[name]
	m.store.Set(name, next)
	m.conns[name] = db
	m.closeQuietly(name, old)

	if changed {
		m.logger.Info("connection bound",
			zap.String("connection", name),
			zap.String("from", existing.UUID()),
			zap.String("to", t.UUID))
	} else {
		m.logger.Info("connection reconfigured",
			zap.String("connection", name),
			zap.String("tenant", t.UUID))
	}
	m.sink.Emit(ctx, tenancy.ConnectionSet{Tenant: t, Connection: name, Changed: changed})
	return nil
}

// Unbind 关闭物理连接并清空配置
func (m *Manager) Unbind(ctx context.Context, slot string) error {
	name := m.slot(slot)

	m.mu.Lock()
	defer m.mu.Unlock()

	db := m.conns[name]
	delete(m.conns, name)
	m.store.Delete(name)
	if db == nil {
		return nil
	}
	if err := m.opener.Close(db); err != nil {
		return fmt.Errorf("close connection %s: %w", name, err)
	}
	return nil
}

// ResolveSystemSlot returns the connection that holds t's administrative
// data.
func (m *Manager) ResolveSystemSlot(t *tenant.Tenant) string {
	if by := t.ManagedBy(); by != "" {
		return by
	}
	return m.systemName
}

// Exists reports whether a physical connection is live under the slot.
func (m *Manager) Exists(slot string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[m.slot(slot)]
	return ok
}

// Configuration 返回槽当前配置的副本
func (m *Manager) Configuration(slot string) tenancy.ConnectionConfig {
	return m.store.Get(m.slot(slot))
}

// Connection returns the live connection of the slot, connecting from the
// stored configuration on first use.
func (m *Manager) Connection(ctx context.Context, slot string) (*gorm.DB, error) {
	name := m.slot(slot)

	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.conns[name]; ok {
		return db, nil
	}
	c := m.store.Get(name)
	if c.Empty() {
		return nil, fmt.Errorf("%w: %s", tenancy.ErrSlotNotConfigured, name)
	}
	db, err := m.opener.Open(ctx, name, c)
	if err != nil {
		return nil, err
	}
	m.conns[name] = db
	return db, nil
}

// Get 当前租户连接；HTTP 请求内应使用中间件放入上下文的连接
func (m *Manager) Get(ctx context.Context) (*gorm.DB, error) {
	return m.Connection(ctx, m.tenantName)
}

// System 返回 t 所属的系统连接，t 为 nil 时为默认系统连接
func (m *Manager) System(ctx context.Context, t *tenant.Tenant) (*gorm.DB, error) {
	return m.Connection(ctx, m.ResolveSystemSlot(t))
}

// Migrate runs the tenant migrations of t, optionally from a directory.
// It reports whether the runner exited with code 0.
func (m *Manager) Migrate(ctx context.Context, t *tenant.Tenant, path string) (bool, error) {
	if m.migrator == nil {
		return false, fmt.Errorf("migrate: %w", errNoRunner)
	}
	if t == nil {
		return false, tenant.ErrTenantNotFound
	}
	opts := migration.Options{TenantIDs: []int{t.ID}, Processes: 1, Force: true}
	if path != "" {
		real, err := realpath(path)
		if err != nil {
			return false, fmt.Errorf("migrate: %w", err)
		}
		opts.Path = real
	}
	return m.run(ctx, m.migrator, opts)
}

// Seed runs the seeder class ("" for the default one) against t.
func (m *Manager) Seed(ctx context.Context, t *tenant.Tenant, class string) (bool, error) {
	if m.seeder == nil {
		return false, fmt.Errorf("seed: %w", errNoRunner)
	}
	if t == nil {
		return false, tenant.ErrTenantNotFound
	}
	return m.run(ctx, m.seeder, migration.Options{TenantIDs: []int{t.ID}, Processes: 1, Force: true, Class: class})
}

func (m *Manager) run(ctx context.Context, r migration.Runner, opts migration.Options) (bool, error) {
	code, err := r.Run(ctx, opts)
	if err != nil {
		m.logger.Error("tenant runner failed", zap.Ints("tenant_ids", opts.TenantIDs), zap.Error(err))
	}
	return code == 0, err
}

// TenantConnector opens a throwaway connection for a tenant id; migrations
// use it so the tenant slot of the request stays untouched.
func (m *Manager) TenantConnector() migration.Connector {
	return func(ctx context.Context, tenantID int) (*gorm.DB, func(), error) {
		if m.resolver == nil {
			return nil, nil, errors.New("tenant connector: no resolver configured")
		}
		t, err := m.resolver.Resolve(ctx, strconv.Itoa(tenantID))
		if err != nil {
			return nil, nil, err
		}
		if t == nil {
			return nil, nil, fmt.Errorf("%w: id %d", tenant.ErrTenantNotFound, tenantID)
		}
		gen, err := m.generator.Generate(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		db, err := m.opener.Open(ctx, MigrationConnectionName, gen.Config)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { m.closeQuietly(MigrationConnectionName, db) }, nil
	}
}

// Close 关闭所有物理连接，配置保留
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, db := range m.conns {
		if err := m.opener.Close(db); err != nil {
			errs = append(errs, fmt.Errorf("close connection %s: %w", name, err))
		}
		delete(m.conns, name)
	}
	return errors.Join(errs...)
}

func (m *Manager) closeQuietly(name string, db *gorm.DB) {
	if db == nil {
		return
	}
	if err := m.opener.Close(db); err != nil {
		m.logger.Warn("close connection failed", zap.String("connection", name), zap.Error(err))
	}
}

func realpath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
