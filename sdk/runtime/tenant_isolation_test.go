package runtime

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant/middleware"
)

func TestManager_ConcurrentRequestsKeepTheirTenant(t *testing.T) {
	m, opener, _, _ := newTestManager(t)
	resolver := mapResolver{
		"a.example.com": {ID: 1, UUID: "ua"},
		"b.example.com": {ID: 2, UUID: "ub"},
	}

	entered := make(chan struct{})
	release := make(chan struct{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.IdentifyTenant(resolver, m, middleware.WithRequired(true)))
	router.GET("/prefix", func(c *gin.Context) {
		if middleware.MustGetTenant(c).UUID == "ua" {
			close(entered)
			<-release
		}
		db, ok := middleware.GetDB(c)
		live, err := m.Connection(c.Request.Context(), middleware.GetSlot(c))
		if !ok || err != nil || live != db {
			c.Status(http.StatusConflict)
			return
		}
		c.String(http.StatusOK, m.Configuration(middleware.GetSlot(c)).String(tenancy.KeyPrefix))
	})

	request := func(host string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://"+host+"/prefix", nil))
		return w
	}

	var (
		wg sync.WaitGroup
		wa *httptest.ResponseRecorder
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		wa = request("a.example.com")
	}()

	<-entered
	wb := request("b.example.com")
	close(release)
	wg.Wait()

	assert.Equal(t, http.StatusOK, wb.Code)
	assert.Equal(t, "2_", wb.Body.String())
	assert.Equal(t, http.StatusOK, wa.Code)
	assert.Equal(t, "1_", wa.Body.String())
	assert.Empty(t, opener.closed, "no request closed another tenant's connection")

	assert.Equal(t, "ua", m.Configuration("tenant:ua").UUID())
	assert.Equal(t, "ub", m.Configuration("tenant:ub").UUID())
	assert.False(t, m.Exists(""), "the shared tenant slot is never bound by requests")
}

func TestManager_RebindReinstallsChangedConfiguration(t *testing.T) {
	ctx := t.Context()
	m, opener, sink, store := newTestManager(t)
	t1 := &tenant.Tenant{ID: 1, UUID: "u1"}

	require.NoError(t, m.Bind(ctx, "", t1))
	first, err := m.Get(ctx)
	require.NoError(t, err)

	store.Set("system", tenancy.ConnectionConfig{"driver": "mysql", "host": "db-failover", "database": "system"})
	require.NoError(t, m.Bind(ctx, "", t1))

	assert.Equal(t, "db-failover", m.Configuration("").String(tenancy.KeyHost))
	assert.Equal(t, "u1", m.Configuration("").UUID())
	require.Len(t, opener.opened, 2)
	assert.Equal(t, "db-failover", opener.opened[1].String(tenancy.KeyHost))
	require.Len(t, opener.closed, 1)
	assert.Same(t, first, opener.closed[0])

	// 配置未变时不重连
	require.NoError(t, m.Bind(ctx, "", t1))
	assert.Len(t, opener.opened, 2)

	changed := make([]bool, 0, len(sink.sets))
	for _, s := range sink.sets {
		changed = append(changed, s.Changed)
	}
	assert.Equal(t, []bool{true, false, false}, changed)
}
