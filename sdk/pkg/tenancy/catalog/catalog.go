// Package catalog inspects the relational catalog to find out how full the
// shared tenant databases are.
//
// Every call reads the catalog again. Results are never cached because a
// stale view would place two tenants on the same table prefix.
package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// DefaultPattern matches the names of shared tenant databases.
const DefaultPattern = "%tenants%"

// Catalog is the read-only view of the relational metadata catalog. The
// handle passed to an implementation decides which connection the queries run
// on, so callers never have to switch a process-wide default.
type Catalog interface {
	// Databases lists database names matching the LIKE pattern.
	Databases(ctx context.Context, pattern string) ([]string, error)
	// Tables lists the tables of one database.
	Tables(ctx context.Context, database string) ([]string, error)
}

// SQLCatalog queries information_schema through an explicit gorm handle,
// normally the system connection.
type SQLCatalog struct {
	db *gorm.DB
}

func NewSQLCatalog(db *gorm.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

const (
	databasesQuery = "SELECT schema_name FROM information_schema.schemata WHERE schema_name LIKE ?"
	tablesQuery    = "SELECT table_name FROM information_schema.tables WHERE table_schema = ?"
)

func (c *SQLCatalog) Databases(ctx context.Context, pattern string) ([]string, error) {
	names, err := c.column(ctx, databasesQuery, pattern)
	if err != nil {
		return nil, fmt.Errorf("list databases like %q: %w", pattern, err)
	}
	return names, nil
}

func (c *SQLCatalog) Tables(ctx context.Context, database string) ([]string, error) {
	names, err := c.column(ctx, tablesQuery, database)
	if err != nil {
		return nil, fmt.Errorf("list tables of %s: %w", database, err)
	}
	return names, nil
}

func (c *SQLCatalog) column(ctx context.Context, query string, arg interface{}) ([]string, error) {
	rows, err := c.db.WithContext(ctx).Raw(query, arg).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
