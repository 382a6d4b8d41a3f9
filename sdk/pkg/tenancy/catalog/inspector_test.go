package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCatalog struct {
	err error
}

func (f failingCatalog) Databases(context.Context, string) ([]string, error) { return nil, f.err }
func (f failingCatalog) Tables(context.Context, string) ([]string, error)    { return nil, f.err }

func TestDistinctTenantCount(t *testing.T) {
	tests := []struct {
		name   string
		tables []string
		want   int
	}{
		{"empty", nil, 0},
		{"one tenant", []string{"1_users", "1_orders", "1_order_items"}, 1},
		{"two tenants", []string{"1_users", "2_users", "1_orders"}, 2},
		{"no underscore is skipped", []string{"migrations", "1_users"}, 1},
		{"leading underscore is skipped", []string{"_meta", "2_users"}, 1},
		{"only unprefixed tables", []string{"migrations", "jobs"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DistinctTenantCount(tt.tables))
		})
	}
}

func TestTablePrefix(t *testing.T) {
	p, ok := TablePrefix("12_password_resets")
	assert.True(t, ok)
	assert.Equal(t, "12", p)

	_, ok = TablePrefix("migrations")
	assert.False(t, ok)
}

func TestInspector_Inspect(t *testing.T) {
	ctx := context.Background()

	t.Run("no shared databases", func(t *testing.T) {
		snap, err := NewInspector(NewMemoryCatalog(), "").Inspect(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Databases)
		assert.Nil(t, snap.Last)
	})

	t.Run("last database is lexicographic", func(t *testing.T) {
		mem := NewMemoryCatalog()
		mem.CreateTable("tenants1", "1_users")
		mem.CreateTable("tenants0", "1_users")
		mem.CreateTable("tenants0", "2_users")
		mem.CreateTable("system", "websites")

		snap, err := NewInspector(mem, "").Inspect(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"tenants0", "tenants1"}, snap.Databases)
		require.NotNil(t, snap.Last)
		assert.Equal(t, "tenants1", snap.Last.Name)
		assert.Equal(t, 1, snap.Last.TenantCount)
	})

	t.Run("catalog failure propagates", func(t *testing.T) {
		boom := errors.New("access denied")
		_, err := NewInspector(failingCatalog{err: boom}, "").Inspect(ctx)
		assert.ErrorIs(t, err, boom)
	})
}

func TestLike(t *testing.T) {
	assert.True(t, like("tenants0", "%tenants%"))
	assert.True(t, like("old_tenants", "%tenants%"))
	assert.True(t, like("tenants12", "tenants%"))
	assert.False(t, like("system", "%tenants%"))
	assert.False(t, like("mytenants", "tenants%"))
	assert.True(t, like("exact", "exact"))
}
