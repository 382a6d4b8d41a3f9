package runtime

import (
	"context"
	"strings"
	"sync"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

// TenantResolver 使用 sync.Map 缓存 reference → 租户，未命中时查询下游 Resolver
type TenantResolver struct {
	next  tenant.Resolver
	cache sync.Map
}

// NewTenantResolver 创建一个新的租户解析器
func NewTenantResolver(next tenant.Resolver) *TenantResolver {
	return &TenantResolver{next: next}
}

// Resolve 返回缓存租户的副本，调用方修改不会污染缓存
func (tr *TenantResolver) Resolve(ctx context.Context, reference string) (*tenant.Tenant, error) {
	key := cacheKey(reference)
	if val, ok := tr.cache.Load(key); ok {
		t := *val.(*tenant.Tenant)
		return &t, nil
	}

	t, err := tr.next.Resolve(ctx, reference)
	if err != nil || t == nil {
		return t, err
	}
	stored := *t
	tr.cache.Store(key, &stored)
	return t, nil
}

// Forget 删除某个 reference 的缓存
func (tr *TenantResolver) Forget(reference string) {
	tr.cache.Delete(cacheKey(reference))
}

// ForgetTenant 删除指向该租户的所有缓存
func (tr *TenantResolver) ForgetTenant(id int) {
	tr.cache.Range(func(key, value interface{}) bool {
		if value.(*tenant.Tenant).ID == id {
			tr.cache.Delete(key)
		}
		return true
	})
}

// Handle 租户分配到共享库后缓存里的行已过期，必须丢弃，否则下次绑定会重复分配
func (tr *TenantResolver) Handle(_ context.Context, e tenancy.Event) {
	if ev, ok := e.(tenancy.SharedDatabaseAllocated); ok && ev.Tenant != nil {
		tr.ForgetTenant(ev.Tenant.ID)
	}
}

// 存储时去除可能的端口号
func cacheKey(reference string) string {
	reference = strings.ToLower(strings.TrimSpace(reference))
	if idx := strings.IndexByte(reference, ':'); idx != -1 {
		reference = reference[:idx]
	}
	return reference
}
