package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/migration"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

type fakeOpener struct {
	opened  []tenancy.ConnectionConfig
	closed  []*gorm.DB
	openErr error
}

func (f *fakeOpener) Open(_ context.Context, _ string, c tenancy.ConnectionConfig) (*gorm.DB, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = append(f.opened, c)
	return &gorm.DB{}, nil
}

func (f *fakeOpener) Close(db *gorm.DB) error {
	f.closed = append(f.closed, db)
	return nil
}

type recordingSink struct {
	sets []tenancy.ConnectionSet
}

func (s *recordingSink) Emit(_ context.Context, e tenancy.Event) {
	if set, ok := e.(tenancy.ConnectionSet); ok {
		s.sets = append(s.sets, set)
	}
}

type mapResolver map[string]*tenant.Tenant

func (m mapResolver) Resolve(_ context.Context, ref string) (*tenant.Tenant, error) {
	return m[ref], nil
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeOpener, *recordingSink, *ViperStore) {
	t.Helper()
	store := NewViperStore(viper.New())
	store.Set("system", tenancy.ConnectionConfig{"driver": "mysql", "host": "db", "database": "system"})

	opener := &fakeOpener{}
	sink := &recordingSink{}
	gen := tenancy.NewGenerator(tenancy.ModePrefix, store)
	m := NewManager(store, opener, gen, append([]Option{WithSink(sink)}, opts...)...)
	return m, opener, sink, store
}

func TestManager_Bind(t *testing.T) {
	ctx := context.Background()
	m, opener, sink, _ := newTestManager(t)
	t1 := &tenant.Tenant{ID: 1, UUID: "u1"}

	require.NoError(t, m.Bind(ctx, "", t1))
	assert.True(t, m.Exists(""))
	assert.True(t, m.Exists("tenant"))
	assert.Equal(t, "u1", m.Configuration("").UUID())
	assert.Equal(t, "1_", m.Configuration("tenant").String(tenancy.KeyPrefix))
	require.Len(t, opener.opened, 1)

	t.Run("rebinding the same tenant keeps the connection", func(t *testing.T) {
		before, err := m.Get(ctx)
		require.NoError(t, err)

		require.NoError(t, m.Bind(ctx, "", &tenant.Tenant{ID: 1, UUID: "u1"}))
		after, err := m.Get(ctx)
		require.NoError(t, err)

		assert.Same(t, before, after)
		assert.Len(t, opener.opened, 1)
		assert.Empty(t, opener.closed)
	})

	t.Run("switching tenants replaces the connection", func(t *testing.T) {
		old, _ := m.Get(ctx)
		require.NoError(t, m.Bind(ctx, "", &tenant.Tenant{ID: 2, UUID: "u2"}))

		assert.Equal(t, "u2", m.Configuration("").UUID())
		assert.Equal(t, "2_", m.Configuration("").String(tenancy.KeyPrefix))
		require.Len(t, opener.closed, 1)
		assert.Same(t, old, opener.closed[0])
	})

	t.Run("binding nil clears the slot", func(t *testing.T) {
		require.NoError(t, m.Bind(ctx, "", nil))
		assert.False(t, m.Exists(""))
		assert.True(t, m.Configuration("").Empty())
	})

	changed := make([]bool, 0, len(sink.sets))
	for _, s := range sink.sets {
		assert.Equal(t, "tenant", s.Connection)
		changed = append(changed, s.Changed)
	}
	assert.Equal(t, []bool{true, false, true, true}, changed)
}

func TestManager_BindRollsBackOnConnectFailure(t *testing.T) {
	ctx := context.Background()
	m, opener, sink, _ := newTestManager(t)
	require.NoError(t, m.Bind(ctx, "", &tenant.Tenant{ID: 1, UUID: "u1"}))
	live, _ := m.Get(ctx)

	opener.openErr = errors.New("access denied")
	err := m.Bind(ctx, "", &tenant.Tenant{ID: 2, UUID: "u2"})
	require.ErrorContains(t, err, "access denied")

	assert.Equal(t, "u1", m.Configuration("").UUID())
	still, _ := m.Get(ctx)
	assert.Same(t, live, still)
	assert.Empty(t, opener.closed)
	assert.Len(t, sink.sets, 1)
}

func TestManager_BindGenerationFailure(t *testing.T) {
	ctx := context.Background()
	m, opener, _, _ := newTestManager(t)
	eu := "eu"

	err := m.Bind(ctx, "", &tenant.Tenant{ID: 1, UUID: "u1", ManagedByDatabaseConnection: &eu})
	assert.ErrorIs(t, err, tenancy.ErrSlotNotConfigured)
	assert.Empty(t, opener.opened)
	assert.False(t, m.Exists(""))
}

func TestManager_Unbind(t *testing.T) {
	ctx := context.Background()
	m, opener, _, _ := newTestManager(t)
	require.NoError(t, m.Bind(ctx, "reporting", &tenant.Tenant{ID: 1, UUID: "u1"}))

	require.NoError(t, m.Unbind(ctx, "reporting"))
	assert.False(t, m.Exists("reporting"))
	assert.True(t, m.Configuration("reporting").Empty())
	assert.Len(t, opener.closed, 1)

	require.NoError(t, m.Unbind(ctx, "reporting"))
}

func TestManager_SystemSlot(t *testing.T) {
	ctx := context.Background()
	m, opener, _, store := newTestManager(t, WithSystemName("system"), WithDefaultConnection("landlord"))
	store.Set("eu", tenancy.ConnectionConfig{"driver": "mysql", "host": "eu"})
	eu := "eu"

	assert.Equal(t, "system", m.ResolveSystemSlot(nil))
	assert.Equal(t, "system", m.ResolveSystemSlot(&tenant.Tenant{}))
	assert.Equal(t, "eu", m.ResolveSystemSlot(&tenant.Tenant{ManagedByDatabaseConnection: &eu}))
	assert.Equal(t, "landlord", m.Default())

	db, err := m.System(ctx, &tenant.Tenant{ManagedByDatabaseConnection: &eu})
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.True(t, m.Exists("eu"))
	assert.Equal(t, "eu", opener.opened[0].String("host"))

	again, err := m.System(ctx, &tenant.Tenant{ManagedByDatabaseConnection: &eu})
	require.NoError(t, err)
	assert.Same(t, db, again)

	_, err = m.Connection(ctx, "missing")
	assert.ErrorIs(t, err, tenancy.ErrSlotNotConfigured)

	require.NoError(t, m.Close())
	assert.False(t, m.Exists("eu"))
}

func TestManager_MigrateAndSeed(t *testing.T) {
	ctx := context.Background()
	var got []migration.Options
	runner := migration.RunnerFunc(func(_ context.Context, opts migration.Options) (int, error) {
		got = append(got, opts)
		if opts.Class == "Broken" {
			return 1, errors.New("seed failed")
		}
		return 0, nil
	})
	m, _, _, _ := newTestManager(t, WithMigrator(runner), WithSeeder(runner))
	tn := &tenant.Tenant{ID: 7, UUID: "u7"}

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "migrations"), 0o755))
	t.Chdir(dir)

	ok, err := m.Migrate(ctx, tn, "migrations")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, []int{7}, got[0].TenantIDs)
	assert.Equal(t, 1, got[0].Processes)
	assert.True(t, got[0].Force)
	assert.True(t, filepath.IsAbs(got[0].Path))

	_, err = m.Migrate(ctx, tn, "does-not-exist")
	assert.Error(t, err)

	ok, err = m.Seed(ctx, tn, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Seed(ctx, tn, "Broken")
	assert.Error(t, err)
	assert.False(t, ok)

	_, err = m.Migrate(ctx, nil, "")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)

	bare, _, _, _ := newTestManager(t)
	_, err = bare.Seed(ctx, tn, "")
	assert.Error(t, err)
}

func TestManager_TenantConnector(t *testing.T) {
	ctx := context.Background()
	resolver := mapResolver{"3": {ID: 3, UUID: "u3"}}
	m, opener, _, _ := newTestManager(t, WithResolver(resolver))

	db, release, err := m.TenantConnector()(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Equal(t, "3_", opener.opened[0].String(tenancy.KeyPrefix))
	assert.False(t, m.Exists(""), "the tenant slot is not touched")

	release()
	assert.Len(t, opener.closed, 1)

	_, _, err = m.TenantConnector()(ctx, 99)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestViperStore(t *testing.T) {
	s := NewViperStore(nil)
	_, err := s.Template("system")
	assert.ErrorIs(t, err, tenancy.ErrSlotNotConfigured)

	s.Set("system", tenancy.ConnectionConfig{"host": "db"})
	c := s.Get("system")
	c["host"] = "mutated"
	assert.Equal(t, "db", s.Get("system").String("host"))

	s.Delete("system")
	assert.True(t, s.Get("system").Empty())
}
