package catalog

import (
	"context"
	"strings"
	"sync"
)

// MemoryCatalog is an in-process Catalog, handy for tests and for local
// development without a database server.
type MemoryCatalog struct {
	mu        sync.RWMutex
	databases map[string][]string
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{databases: make(map[string][]string)}
}

// CreateDatabase registers an empty database.
func (m *MemoryCatalog) CreateDatabase(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.databases[name]; !ok {
		m.databases[name] = nil
	}
}

// CreateTable adds a table, creating the database on first use.
func (m *MemoryCatalog) CreateTable(database, table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.databases[database] = append(m.databases[database], table)
}

func (m *MemoryCatalog) Databases(_ context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for name := range m.databases {
		if like(name, pattern) {
			out = append(out, name)
		}
	}
	return out, nil
}

func (m *MemoryCatalog) Tables(_ context.Context, database string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.databases[database]...), nil
}

// like supports the '%' wildcard only, which is all the shared database
// patterns use.
func like(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return strings.HasSuffix(s, last)
}
