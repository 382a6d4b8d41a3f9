package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
)

// Cache keeps the last templates read from etcd so a restart can proceed
// while etcd is unreachable.
type Cache interface {
	Load() (map[string]tenancy.ConnectionConfig, error)
	Save(map[string]tenancy.ConnectionConfig) error
}

// FileCache 原子写入（临时文件 + rename），模板含密码，文件权限 0600
type FileCache struct {
	mu       sync.RWMutex
	filePath string
}

// NewFileCache 路径可由 TENANCY_TEMPLATE_CACHE 覆盖，默认 ./cache/connection_templates.json
func NewFileCache() *FileCache {
	path := os.Getenv("TENANCY_TEMPLATE_CACHE")
	if path == "" {
		path = filepath.Join("cache", "connection_templates.json")
	}
	return NewFileCacheWithPath(path)
}

func NewFileCacheWithPath(path string) *FileCache {
	return &FileCache{filePath: path}
}

// Load returns os.ErrNotExist when nothing was cached yet.
func (f *FileCache) Load() (map[string]tenancy.ConnectionConfig, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	raw, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, err
	}
	var data map[string]tenancy.ConnectionConfig
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode template cache: %w", err)
	}
	return data, nil
}

func (f *FileCache) Save(data map[string]tenancy.ConnectionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.filePath), 0o755); err != nil {
		return fmt.Errorf("create template cache dir: %w", err)
	}
	raw, err := json.JSON.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode template cache: %w", err)
	}

	tmp := f.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write template cache: %w", err)
	}
	if err := os.Rename(tmp, f.filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename template cache: %w", err)
	}
	return nil
}

func (f *FileCache) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.Remove(f.filePath)
}
