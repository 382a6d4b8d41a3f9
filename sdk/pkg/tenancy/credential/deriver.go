// Package credential 派生和恢复共享数据库的访问凭证
package credential

import (
	"context"
	"fmt"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

// DefaultSalt is appended to every derived credential. Changing it makes
// existing shared database users unreachable.
const DefaultSalt = "1df1dsffds3ds6dfs+5sfd"

// Lookup finds the first tenant assigned to a shared database.
type Lookup interface {
	FindByStoredInDatabase(ctx context.Context, database string) (*tenant.Tenant, error)
}

// Deriver builds the username/password pair of shared databases.
type Deriver struct {
	salt   string
	lookup Lookup
}

func NewDeriver(salt string, lookup Lookup) *Deriver {
	if salt == "" {
		salt = DefaultSalt
	}
	return &Deriver{salt: salt, lookup: lookup}
}

// Derive 格式固定为 "<the_key>-<uuid>-<id>-<salt>"，已存在的数据库用户依赖这个格式
func (d *Deriver) Derive(t *tenant.Tenant) string {
	return fmt.Sprintf("%s-%s-%d-%s", t.TheKey, t.UUID, t.ID, d.salt)
}

// RecoverOrDerive returns the credential the shared database was created
// with: the one derived from the first tenant stored in it. When no tenant
// is stored there yet the credential is derived from t.
func (d *Deriver) RecoverOrDerive(ctx context.Context, database string, t *tenant.Tenant) (string, error) {
	if d.lookup == nil {
		return d.Derive(t), nil
	}
	owner, err := d.lookup.FindByStoredInDatabase(ctx, database)
	if err != nil {
		return "", fmt.Errorf("recover credential of %s: %w", database, err)
	}
	if owner == nil {
		return d.Derive(t), nil
	}
	return d.Derive(owner), nil
}
