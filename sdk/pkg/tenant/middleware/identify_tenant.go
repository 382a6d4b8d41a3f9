package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

const (
	// ContextKeyTenant 识别出的租户在 gin.Context 中的键
	ContextKeyTenant = "tenant"
	// ContextKeyDB 本次请求租户连接的键
	ContextKeyDB = "tenant_db"
	// ContextKeySlot 本次请求绑定的连接槽名
	ContextKeySlot = "tenant_slot"

	// DefaultSlot 每个租户的连接槽名为 <slot>:<uuid>
	DefaultSlot = "tenant"

	ResolverTypeHost   = "host"
	ResolverTypeHeader = "header"
	ResolverTypeQuery  = "query"

	DefaultHeaderName = "X-Tenant"
	DefaultQueryParam = "tenant"
)

// Binder points a connection slot at a tenant and hands out the slot's live
// connection; runtime.Manager satisfies it.
type Binder interface {
	Bind(ctx context.Context, slot string, t *tenant.Tenant) error
	Connection(ctx context.Context, slot string) (*gorm.DB, error)
}

type options struct {
	resolverType string
	headerName   string
	queryParam   string
	slot         string
	required     bool
}

type Option func(*options)

// WithResolverType 指定租户引用的来源：host（默认）、header、query
func WithResolverType(t string) Option {
	return func(o *options) { o.resolverType = t }
}

func WithHeaderName(name string) Option {
	return func(o *options) { o.headerName = name }
}

func WithQueryParam(name string) Option {
	return func(o *options) { o.queryParam = name }
}

// WithSlot changes the slot stem; the bound slot is still one per tenant.
func WithSlot(slot string) Option {
	return func(o *options) { o.slot = slot }
}

// WithRequired 未识别出租户时返回 404，默认放行
func WithRequired(required bool) Option {
	return func(o *options) { o.required = required }
}

// IdentifyTenant resolves the tenant of the request, binds it to a slot of its
// own and puts that slot's connection on the context before the handlers run.
// Requests of different tenants never share a slot, so one request cannot
// rebind or close the connection another one is using.
func IdentifyTenant(resolver tenant.Resolver, binder Binder, opts ...Option) gin.HandlerFunc {
	o := &options{
		resolverType: ResolverTypeHost,
		headerName:   DefaultHeaderName,
		queryParam:   DefaultQueryParam,
		slot:         DefaultSlot,
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(c *gin.Context) {
		reference := o.reference(c)
		log := logger.GetRequestLogger(c)

		var t *tenant.Tenant
		if reference != "" {
			var err error
			t, err = resolver.Resolve(c.Request.Context(), reference)
			if err != nil {
				log.Error("resolve tenant failed", zap.String("reference", reference), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant lookup failed"})
				return
			}
		}
		if t == nil {
			if o.required {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
				return
			}
			c.Next()
			return
		}

		slot := SlotName(o.slot, t)
		if err := binder.Bind(c.Request.Context(), slot, t); err != nil {
			log.Error("bind tenant connection failed", zap.String("tenant", t.UUID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "tenant database unavailable"})
			return
		}
		db, err := binder.Connection(c.Request.Context(), slot)
		if err != nil {
			log.Error("open tenant connection failed", zap.String("slot", slot), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "tenant database unavailable"})
			return
		}

		c.Set(ContextKeyTenant, t)
		c.Set(ContextKeySlot, slot)
		c.Set(ContextKeyDB, db)
		ctx := logger.WithContext(c.Request.Context(), log.With(zap.String("tenant", t.UUID)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SlotName 租户专属的连接槽名
func SlotName(stem string, t *tenant.Tenant) string {
	if stem == "" {
		stem = DefaultSlot
	}
	return stem + ":" + t.UUID
}

func (o *options) reference(c *gin.Context) string {
	switch o.resolverType {
	case ResolverTypeHeader:
		return strings.TrimSpace(c.GetHeader(o.headerName))
	case ResolverTypeQuery:
		return strings.TrimSpace(c.Query(o.queryParam))
	default:
		return c.Request.Host
	}
}

// GetTenant 获取中间件识别出的租户
func GetTenant(c *gin.Context) (*tenant.Tenant, bool) {
	v, ok := c.Get(ContextKeyTenant)
	if !ok {
		return nil, false
	}
	t, ok := v.(*tenant.Tenant)
	return t, ok && t != nil
}

// GetDB 返回本次请求租户的连接
func GetDB(c *gin.Context) (*gorm.DB, bool) {
	v, ok := c.Get(ContextKeyDB)
	if !ok {
		return nil, false
	}
	db, ok := v.(*gorm.DB)
	return db, ok && db != nil
}

// GetSlot 返回本次请求绑定的连接槽名，未识别出租户时为空
func GetSlot(c *gin.Context) string {
	return c.GetString(ContextKeySlot)
}

// MustGetTenant panics when no tenant was identified.
func MustGetTenant(c *gin.Context) *tenant.Tenant {
	t, ok := GetTenant(c)
	if !ok {
		panic("tenant not identified")
	}
	return t
}
