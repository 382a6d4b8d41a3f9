// Package tenancy 生成租户连接配置：按划分模式克隆模板并改写数据库、前缀和凭证
package tenancy

import "strings"

// Mode is the strategy that isolates tenants at the storage layer. It is
// fixed per deployment.
type Mode string

const (
	// ModeDatabase packs tenants into shared databases, one table prefix each.
	ModeDatabase Mode = "database"
	// ModePrefix keeps every tenant in the template database behind "<id>_".
	ModePrefix Mode = "prefix"
	// ModeSchema gives every tenant its own postgres schema and user.
	ModeSchema Mode = "schema"
	// ModeBypass leaves the configuration to ConfigurationLoading observers.
	ModeBypass Mode = "bypass"
)

// ParseMode accepts the short names and their "separate-" spellings.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "separate-"))
	if !m.Valid() {
		return "", &ConfigurationError{Mode: s}
	}
	return m, nil
}

func (m Mode) Valid() bool {
	switch m {
	case ModeDatabase, ModePrefix, ModeSchema, ModeBypass:
		return true
	}
	return false
}

func (m Mode) String() string {
	return string(m)
}
