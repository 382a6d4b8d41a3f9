package config

import (
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy/allocator"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy/catalog"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy/credential"
)

const (
	DefaultSystemConnectionName = "system"
	DefaultTenantConnectionName = "tenant"
	DefaultTenantsPerDatabase   = allocator.DefaultCapacity
)

// Tenancy 租户划分配置
type Tenancy struct {
	// DivisionMode database | prefix | schema | bypass，也接受 separate- 前缀
	DivisionMode         string `mapstructure:"divisionMode" validate:"omitempty,oneof=database prefix schema bypass separate-database separate-prefix separate-schema"`
	SystemConnectionName string `mapstructure:"systemConnectionName"`
	TenantConnectionName string `mapstructure:"tenantConnectionName"`
	// DefaultConnection 非空时作为应用默认连接名
	DefaultConnection     string `mapstructure:"defaultConnection"`
	TenantsPerDatabase    int    `mapstructure:"tenantsPerDatabase" validate:"gte=0"`
	SharedDatabaseBase    string `mapstructure:"sharedDatabaseBase"`
	SharedDatabasePattern string `mapstructure:"sharedDatabasePattern"`
	StaticSalt            string `mapstructure:"staticSalt"`
	AppKey                string `mapstructure:"appKey" validate:"omitempty,max=64"`
	// EncryptionKey 解密 password_encrypted 模板，32 字节或 base64:...
	EncryptionKey  string `mapstructure:"encryptionKey"`
	IdentifyHeader string `mapstructure:"identifyHeader"`
}

var TenancyConfig = new(Tenancy)

// Mode 解析划分模式
func (t *Tenancy) Mode() (tenancy.Mode, error) {
	if t == nil || t.DivisionMode == "" {
		return tenancy.ModeDatabase, nil
	}
	return tenancy.ParseMode(t.DivisionMode)
}

func (t *Tenancy) GetSystemConnectionName() string {
	if t == nil || t.SystemConnectionName == "" {
		return DefaultSystemConnectionName
	}
	return t.SystemConnectionName
}

func (t *Tenancy) GetTenantConnectionName() string {
	if t == nil || t.TenantConnectionName == "" {
		return DefaultTenantConnectionName
	}
	return t.TenantConnectionName
}

func (t *Tenancy) GetTenantsPerDatabase() int {
	if t == nil || t.TenantsPerDatabase <= 0 {
		return DefaultTenantsPerDatabase
	}
	return t.TenantsPerDatabase
}

func (t *Tenancy) GetSharedDatabaseBase() string {
	if t == nil || t.SharedDatabaseBase == "" {
		return allocator.DefaultDatabaseBase
	}
	return t.SharedDatabaseBase
}

func (t *Tenancy) GetSharedDatabasePattern() string {
	if t == nil || t.SharedDatabasePattern == "" {
		return catalog.DefaultPattern
	}
	return t.SharedDatabasePattern
}

func (t *Tenancy) GetStaticSalt() string {
	if t == nil || t.StaticSalt == "" {
		return credential.DefaultSalt
	}
	return t.StaticSalt
}
