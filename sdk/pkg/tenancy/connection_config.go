package tenancy

import (
	"reflect"

	"github.com/spf13/cast"
)

// 连接配置中的常用键
const (
	KeyUUID              = "uuid"
	KeyDriver            = "driver"
	KeyHost              = "host"
	KeyPort              = "port"
	KeyDatabase          = "database"
	KeyUsername          = "username"
	KeyPassword          = "password"
	KeyPasswordEncrypted = "password_encrypted"
	KeyPrefix            = "prefix"
	KeySchema            = "schema"
	KeyCharset           = "charset"
	KeySSLMode           = "sslmode"
	KeyReplicas          = "replicas"
	KeyMaxIdleConns      = "max_idle_conns"
	KeyMaxOpenConns      = "max_open_conns"
	KeyConnMaxLifetime   = "conn_max_lifetime"
)

const redacted = "******"

// ConnectionConfig is one entry of database.connections: a loosely typed
// key/value map as it comes out of the configuration store.
type ConnectionConfig map[string]interface{}

// Clone copies the map and every nested map or slice so the copy can be
// mutated without touching the template.
func (c ConnectionConfig) Clone() ConnectionConfig {
	if c == nil {
		return ConnectionConfig{}
	}
	out := make(ConnectionConfig, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case ConnectionConfig:
		return t.Clone()
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	case []map[string]interface{}:
		s := make([]map[string]interface{}, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv).(map[string]interface{})
		}
		return s
	default:
		return v
	}
}

func (c ConnectionConfig) String(key string) string {
	return cast.ToString(c[key])
}

func (c ConnectionConfig) Int(key string) int {
	return cast.ToInt(c[key])
}

func (c ConnectionConfig) Bool(key string) bool {
	return cast.ToBool(c[key])
}

// UUID returns the tenant tag written by the generator; empty for untagged
// configurations.
func (c ConnectionConfig) UUID() string {
	return c.String(KeyUUID)
}

func (c ConnectionConfig) Empty() bool {
	return len(c) == 0
}

// Equal compares two configurations key by key, nested values included.
func (c ConnectionConfig) Equal(other ConnectionConfig) bool {
	if len(c) != len(other) {
		return false
	}
	if len(c) == 0 {
		return true
	}
	return reflect.DeepEqual(map[string]interface{}(c), map[string]interface{}(other))
}

// Redacted returns a copy safe to log or publish.
func (c ConnectionConfig) Redacted() ConnectionConfig {
	out := c.Clone()
	if _, ok := out[KeyPassword]; ok {
		out[KeyPassword] = redacted
	}
	if replicas, ok := out[KeyReplicas].([]interface{}); ok {
		for _, r := range replicas {
			if m, ok := r.(map[string]interface{}); ok {
				if _, has := m[KeyPassword]; has {
					m[KeyPassword] = redacted
				}
			}
		}
	}
	return out
}
