package tenancy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy/allocator"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy/credential"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

// DefaultSystemName 默认系统连接名
const DefaultSystemName = "system"

// TemplateSource returns the base configuration of a named connection.
type TemplateSource interface {
	Template(name string) (ConnectionConfig, error)
}

// Allocator places a tenant without a shared database.
type Allocator interface {
	Assign(ctx context.Context, t *tenant.Tenant, record allocator.RecordFunc) (tenant.Assignment, error)
}

// CredentialSource returns the login of a shared database.
type CredentialSource interface {
	RecoverOrDerive(ctx context.Context, database string, t *tenant.Tenant) (string, error)
}

// AssignmentRecorder persists a fresh assignment on the tenant row.
type AssignmentRecorder interface {
	SaveAssignment(ctx context.Context, t *tenant.Tenant, a tenant.Assignment) error
}

// Generated is the outcome of Generate. Assignment is set only when the
// tenant was placed into a shared database by this call.
type Generated struct {
	Config     ConnectionConfig
	Assignment *tenant.Assignment
}

type Generator struct {
	mode        Mode
	templates   TemplateSource
	systemName  string
	allocator   Allocator
	credentials CredentialSource
	passwords   credential.PasswordGenerator
	recorder    AssignmentRecorder
	sink        Sink
	logger      *zap.Logger
}

type GeneratorOption func(*Generator)

func WithSystemName(name string) GeneratorOption {
	return func(g *Generator) {
		if name != "" {
			g.systemName = name
		}
	}
}

// WithAllocator and WithCredentials are required in database mode.
func WithAllocator(a Allocator) GeneratorOption {
	return func(g *Generator) { g.allocator = a }
}

func WithCredentials(c CredentialSource) GeneratorOption {
	return func(g *Generator) { g.credentials = c }
}

// WithPasswordGenerator is required in schema mode.
func WithPasswordGenerator(p credential.PasswordGenerator) GeneratorOption {
	return func(g *Generator) { g.passwords = p }
}

// WithRecorder persists fresh assignments inside the allocation lock.
// Without it the caller owns persistence of Generated.Assignment.
func WithRecorder(r AssignmentRecorder) GeneratorOption {
	return func(g *Generator) { g.recorder = r }
}

func WithSink(s Sink) GeneratorOption {
	return func(g *Generator) {
		if s != nil {
			g.sink = s
		}
	}
}

func WithGeneratorLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGenerator(mode Mode, templates TemplateSource, opts ...GeneratorOption) *Generator {
	g := &Generator{
		mode:       mode,
		templates:  templates,
		systemName: DefaultSystemName,
		sink:       NopSink(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Mode() Mode {
	return g.mode
}

func (g *Generator) SystemName() string {
	return g.systemName
}

// Generate builds the connection configuration of t. The template is cloned
// first and never modified.
func (g *Generator) Generate(ctx context.Context, t *tenant.Tenant) (*Generated, error) {
	if t == nil {
		return nil, tenant.ErrTenantNotFound
	}

	base := t.ManagedBy()
	if base == "" {
		base = g.systemName
	}
	tpl, err := g.templates.Template(base)
	if err != nil {
		return nil, err
	}
	clone := tpl.Clone()

	g.sink.Emit(ctx, ConfigurationLoading{Mode: g.mode, Config: clone, Tenant: t})

	// 用户名密码会变，uuid 用来判断重复绑定
	clone[KeyUUID] = t.UUID

	out := &Generated{Config: clone}
	switch g.mode {
	case ModeDatabase:
		a, err := g.separateDatabase(ctx, t, clone)
		if err != nil {
			return nil, err
		}
		out.Assignment = a
	case ModePrefix:
		clone[KeyPrefix] = fmt.Sprintf("%d_", t.ID)
	case ModeSchema:
		if g.passwords == nil {
			return nil, &ConfigurationError{Mode: string(g.mode), Reason: "no password generator"}
		}
		password, err := g.passwords.Generate(t)
		if err != nil {
			return nil, fmt.Errorf("generate schema password of tenant %s: %w", t.UUID, err)
		}
		clone[KeyUsername] = t.UUID
		clone[KeySchema] = t.UUID
		clone[KeyPassword] = password
	case ModeBypass:
	default:
		return nil, &ConfigurationError{Mode: string(g.mode)}
	}

	g.sink.Emit(ctx, ConfigurationLoaded{Mode: g.mode, Config: clone, Tenant: t})

	g.logger.Debug("tenant connection configuration generated",
		zap.String("mode", g.mode.String()),
		zap.String("tenant", t.UUID),
		zap.String("base", base))
	return out, nil
}

// separateDatabase 已分配的租户复用原库和前缀，只恢复凭证；未分配的在分配锁内落库
func (g *Generator) separateDatabase(ctx context.Context, t *tenant.Tenant, clone ConnectionConfig) (*tenant.Assignment, error) {
	if g.allocator == nil || g.credentials == nil {
		return nil, &ConfigurationError{Mode: string(g.mode), Reason: "no allocator or credential source"}
	}

	placed := t
	var fresh *tenant.Assignment
	if !t.IsAllocated() {
		var record allocator.RecordFunc
		if g.recorder != nil {
			record = g.recorder.SaveAssignment
		}
		a, err := g.allocator.Assign(ctx, t, record)
		if err != nil {
			return nil, fmt.Errorf("allocate shared database for tenant %s: %w", t.UUID, err)
		}
		placed = t.WithAssignment(a)
		fresh = &a
		g.sink.Emit(ctx, SharedDatabaseAllocated{Tenant: placed, Assignment: a})
	}

	password, err := g.credentials.RecoverOrDerive(ctx, placed.StoredInDatabase, placed)
	if err != nil {
		return nil, err
	}

	clone[KeyUsername] = placed.StoredInDatabase
	clone[KeyDatabase] = placed.StoredInDatabase
	clone[KeyPassword] = password
	clone[KeyPrefix] = fmt.Sprintf("%d_", placed.TenantPrefix)
	return fresh, nil
}
