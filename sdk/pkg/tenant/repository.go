package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrTenantNotFound is returned by callers that require a tenant to exist.
var ErrTenantNotFound = errors.New("tenant not found")

// Resolver turns a reference (hostname, uuid or numeric id) into a tenant.
// A nil tenant with a nil error means nothing matched.
type Resolver interface {
	Resolve(ctx context.Context, reference string) (*Tenant, error)
}

// Repository is the tenant store consulted by the allocator and the
// credential deriver.
type Repository interface {
	Resolver

	// FindByStoredInDatabase returns the tenant that opened the shared
	// database (lowest prefix, then lowest id), or nil when the database has
	// no tenants yet.
	FindByStoredInDatabase(ctx context.Context, database string) (*Tenant, error)

	// Exists reports whether a tenant with the uuid is registered.
	Exists(ctx context.Context, uuid string) (bool, error)

	// SaveAssignment persists the shared database placement of t.
	SaveAssignment(ctx context.Context, t *Tenant, a Assignment) error
}

// GormRepository reads tenants from the system database.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository binds the repository to an explicit system connection.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Resolve looks the reference up by uuid, id or hostname, in that order of
// recognition. Hostname misses fall back to a raw uuid match because tenant
// uuids are not required to be RFC 4122 strings.
func (r *GormRepository) Resolve(ctx context.Context, reference string) (*Tenant, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}

	if _, err := uuid.Parse(reference); err == nil {
		return r.first(ctx, "uuid = ?", reference)
	}
	if id, err := strconv.Atoi(reference); err == nil {
		return r.first(ctx, "id = ?", id)
	}

	host := normalizeHost(reference)
	var t Tenant
	err := r.db.WithContext(ctx).
		Joins("JOIN hostnames ON hostnames.website_id = websites.id").
		Where("hostnames.fqdn = ?", host).
		First(&t).Error
	switch {
	case err == nil:
		return &t, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.first(ctx, "uuid = ?", reference)
	default:
		return nil, fmt.Errorf("resolve tenant by hostname %q: %w", host, err)
	}
}

func (r *GormRepository) FindByStoredInDatabase(ctx context.Context, database string) (*Tenant, error) {
	var t Tenant
	err := r.db.WithContext(ctx).
		Where("stored_in_database = ?", database).
		Order("tenant_prefix").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant stored in %s: %w", database, err)
	}
	return &t, nil
}

func (r *GormRepository) Exists(ctx context.Context, uuid string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Tenant{}).Where("uuid = ?", uuid).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count tenants with uuid %s: %w", uuid, err)
	}
	return n > 0, nil
}

func (r *GormRepository) SaveAssignment(ctx context.Context, t *Tenant, a Assignment) error {
	values := map[string]interface{}{
		"stored_in_database": a.Database,
		"tenant_prefix":      a.Prefix,
	}
	if a.TheKey != "" {
		values["the_key"] = a.TheKey
	}
	err := r.db.WithContext(ctx).Model(&Tenant{}).Where("id = ?", t.ID).Updates(values).Error
	if err != nil {
		return fmt.Errorf("save assignment of tenant %d: %w", t.ID, err)
	}
	return nil
}

// LatestPlacement returns the persisted placement with the greatest shared
// database name and, inside it, the greatest prefix. Tenants are recorded
// before their tables exist, so this sees slots the catalog cannot yet. Nil
// means no tenant has been placed.
func (r *GormRepository) LatestPlacement(ctx context.Context) (*Assignment, error) {
	var t Tenant
	err := r.db.WithContext(ctx).
		Where("stored_in_database <> ''").
		Order("stored_in_database DESC").
		Order("tenant_prefix DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest placement: %w", err)
	}
	return &Assignment{Database: t.StoredInDatabase, Prefix: t.TenantPrefix}, nil
}

func (r *GormRepository) first(ctx context.Context, query string, args ...interface{}) (*Tenant, error) {
	var t Tenant
	err := r.db.WithContext(ctx).Where(query, args...).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant (%s): %w", query, err)
	}
	return &t, nil
}

// normalizeHost lower-cases the host and strips a port suffix.
func normalizeHost(host string) string {
	if idx := strings.LastIndexByte(host, ':'); idx != -1 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
