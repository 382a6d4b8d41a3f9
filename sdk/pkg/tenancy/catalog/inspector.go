package catalog

import (
	"context"
	"sort"
	"strings"
)

// SharedDatabase describes one physical database holding several tenants.
type SharedDatabase struct {
	Name        string
	Tables      []string
	TenantCount int
}

// Snapshot is a single fresh read of the shared database layout.
type Snapshot struct {
	// Databases are sorted lexicographically; the last one is the most recent.
	Databases []string
	// Last is nil when no shared database exists yet.
	Last *SharedDatabase
}

// Inspector answers capacity questions about shared databases.
type Inspector struct {
	catalog Catalog
	pattern string
}

// NewInspector returns an inspector reading from c. An empty pattern means
// DefaultPattern.
func NewInspector(c Catalog, pattern string) *Inspector {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Inspector{catalog: c, pattern: pattern}
}

// SharedDatabases returns the shared database names in lexicographic order.
// "Most recent" means last in this order, not newest by creation time.
func (i *Inspector) SharedDatabases(ctx context.Context) ([]string, error) {
	names, err := i.catalog.Databases(ctx, i.pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (i *Inspector) TablesInDatabase(ctx context.Context, name string) ([]string, error) {
	return i.catalog.Tables(ctx, name)
}

// Inspect lists the shared databases and describes the last one.
func (i *Inspector) Inspect(ctx context.Context) (Snapshot, error) {
	names, err := i.SharedDatabases(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if len(names) == 0 {
		return Snapshot{}, nil
	}

	last := names[len(names)-1]
	tables, err := i.TablesInDatabase(ctx, last)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Databases: names,
		Last: &SharedDatabase{
			Name:        last,
			Tables:      tables,
			TenantCount: DistinctTenantCount(tables),
		},
	}, nil
}

// DistinctTenantCount counts the distinct table prefixes, the prefix being
// the part of a table name before its first underscore. Tables without an
// underscore, or starting with one, carry no tenant prefix and are skipped.
func DistinctTenantCount(tables []string) int {
	seen := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		prefix, ok := TablePrefix(table)
		if !ok {
			continue
		}
		seen[prefix] = struct{}{}
	}
	return len(seen)
}

// TablePrefix extracts the tenant prefix of a table name.
func TablePrefix(table string) (string, bool) {
	idx := strings.IndexByte(table, '_')
	if idx <= 0 {
		return "", false
	}
	return table[:idx], true
}
