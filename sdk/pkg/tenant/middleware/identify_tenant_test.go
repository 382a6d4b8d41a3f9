package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

type stubResolver struct {
	tenants map[string]*tenant.Tenant
	err     error
	refs    []string
}

func (s *stubResolver) Resolve(_ context.Context, ref string) (*tenant.Tenant, error) {
	s.refs = append(s.refs, ref)
	if s.err != nil {
		return nil, s.err
	}
	return s.tenants[ref], nil
}

type stubBinder struct {
	bound   []string
	slots   []string
	dbs     map[string]*gorm.DB
	err     error
	connErr error
}

func (b *stubBinder) Bind(_ context.Context, slot string, t *tenant.Tenant) error {
	if b.err != nil {
		return b.err
	}
	b.slots = append(b.slots, slot)
	b.bound = append(b.bound, t.UUID)
	return nil
}

func (b *stubBinder) Connection(_ context.Context, slot string) (*gorm.DB, error) {
	if b.connErr != nil {
		return nil, b.connErr
	}
	if b.dbs == nil {
		b.dbs = make(map[string]*gorm.DB)
	}
	db, ok := b.dbs[slot]
	if !ok {
		db = &gorm.DB{}
		b.dbs[slot] = db
	}
	return db, nil
}

func newRouter(r tenant.Resolver, b Binder, opts ...Option) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(IdentifyTenant(r, b, opts...))
	router.GET("/test", func(c *gin.Context) {
		t, ok := GetTenant(c)
		if !ok {
			c.String(http.StatusOK, "landlord")
			return
		}
		c.String(http.StatusOK, t.UUID)
	})
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdentifyTenant_Host(t *testing.T) {
	resolver := &stubResolver{tenants: map[string]*tenant.Tenant{
		"shop.example.com:8080": {ID: 1, UUID: "u1"},
	}}
	binder := &stubBinder{}
	router := newRouter(resolver, binder)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Host = "shop.example.com:8080"
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
	assert.Equal(t, []string{"u1"}, binder.bound)
	assert.Equal(t, []string{"tenant:u1"}, binder.slots)
}

func TestIdentifyTenant_ConnectionPerTenant(t *testing.T) {
	resolver := &stubResolver{tenants: map[string]*tenant.Tenant{
		"a.example.com": {ID: 1, UUID: "ua"},
		"b.example.com": {ID: 2, UUID: "ub"},
	}}
	binder := &stubBinder{}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(IdentifyTenant(resolver, binder))
	seen := make(map[string]*gorm.DB)
	router.GET("/db", func(c *gin.Context) {
		db, ok := GetDB(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		seen[GetSlot(c)] = db
		c.String(http.StatusOK, GetSlot(c))
	})

	for _, host := range []string{"a.example.com", "b.example.com", "a.example.com"} {
		req := httptest.NewRequest(http.MethodGet, "/db", nil)
		req.Host = host
		w := serve(router, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, []string{"tenant:ua", "tenant:ub", "tenant:ua"}, binder.slots)
	assert.Len(t, seen, 2)
	assert.Same(t, binder.dbs["tenant:ua"], seen["tenant:ua"])
	assert.NotSame(t, seen["tenant:ua"], seen["tenant:ub"])
}

func TestIdentifyTenant_Unknown(t *testing.T) {
	resolver := &stubResolver{}

	tests := []struct {
		name           string
		opts           []Option
		expectedStatus int
		expectedBody   string
	}{
		{"optional passes through", nil, http.StatusOK, "landlord"},
		{"required rejects", []Option{WithRequired(true)}, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binder := &stubBinder{}
			w := serve(newRouter(resolver, binder, tt.opts...), httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, w.Body.String())
			}
			assert.Empty(t, binder.bound)
		})
	}
}

func TestIdentifyTenant_Header(t *testing.T) {
	resolver := &stubResolver{tenants: map[string]*tenant.Tenant{"42": {ID: 42, UUID: "u42"}}}
	binder := &stubBinder{}
	router := newRouter(resolver, binder,
		WithResolverType(ResolverTypeHeader), WithHeaderName("X-Website"), WithSlot("reporting"))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Website", " 42 ")
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u42", w.Body.String())
	assert.Equal(t, []string{"reporting:u42"}, binder.slots)

	// 缺少 header 时不查询
	w = serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"42"}, resolver.refs)
}

func TestIdentifyTenant_Query(t *testing.T) {
	resolver := &stubResolver{tenants: map[string]*tenant.Tenant{"u7": {ID: 7, UUID: "u7"}}}
	router := newRouter(resolver, &stubBinder{}, WithResolverType(ResolverTypeQuery))

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test?tenant=u7", nil))
	assert.Equal(t, "u7", w.Body.String())
}

func TestIdentifyTenant_Failures(t *testing.T) {
	t.Run("resolver error", func(t *testing.T) {
		resolver := &stubResolver{err: errors.New("db down")}
		w := serve(newRouter(resolver, &stubBinder{}), httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("bind error", func(t *testing.T) {
		resolver := &stubResolver{tenants: map[string]*tenant.Tenant{"example.com": {ID: 1, UUID: "u1"}}}
		w := serve(newRouter(resolver, &stubBinder{err: errors.New("access denied")}), httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("connection error", func(t *testing.T) {
		resolver := &stubResolver{tenants: map[string]*tenant.Tenant{"example.com": {ID: 1, UUID: "u1"}}}
		w := serve(newRouter(resolver, &stubBinder{connErr: errors.New("too many connections")}), httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestSlotName(t *testing.T) {
	assert.Equal(t, "tenant:u1", SlotName("", &tenant.Tenant{UUID: "u1"}))
	assert.Equal(t, "reporting:u1", SlotName("reporting", &tenant.Tenant{UUID: "u1"}))
}

func TestMustGetTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Panics(t, func() { MustGetTenant(c) })
	_, ok := GetDB(c)
	assert.False(t, ok)
	assert.Empty(t, GetSlot(c))

	c.Set(ContextKeyTenant, &tenant.Tenant{UUID: "u1"})
	assert.Equal(t, "u1", MustGetTenant(c).UUID)
}
