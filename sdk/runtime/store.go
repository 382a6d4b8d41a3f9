package runtime

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
)

const connectionsKey = "database.connections."

// ConfigStore holds the configuration of every named connection.
type ConfigStore interface {
	// Get returns a copy of the entry, empty when the name is unknown.
	Get(name string) tenancy.ConnectionConfig
	Set(name string, c tenancy.ConnectionConfig)
	// Delete leaves an empty entry behind.
	Delete(name string)
}

// ViperStore 直接读写 viper 中的 database.connections.<name>
type ViperStore struct {
	mu sync.RWMutex
	v  *viper.Viper
}

func NewViperStore(v *viper.Viper) *ViperStore {
	if v == nil {
		v = viper.New()
	}
	return &ViperStore{v: v}
}

func (s *ViperStore) Get(name string) tenancy.ConnectionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tenancy.ConnectionConfig(s.v.GetStringMap(connectionsKey + name)).Clone()
}

func (s *ViperStore) Set(name string, c tenancy.ConnectionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(connectionsKey+name, map[string]interface{}(c.Clone()))
}

func (s *ViperStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(connectionsKey+name, map[string]interface{}{})
}

// Template lets the store serve as the generator's template source.
func (s *ViperStore) Template(name string) (tenancy.ConnectionConfig, error) {
	c := s.Get(name)
	if c.Empty() {
		return nil, fmt.Errorf("%w: %s", tenancy.ErrSlotNotConfigured, name)
	}
	return c, nil
}
