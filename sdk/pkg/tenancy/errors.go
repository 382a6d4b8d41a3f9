package tenancy

import (
	"errors"
	"fmt"
)

// ErrSlotNotConfigured 连接名没有对应的配置模板
var ErrSlotNotConfigured = errors.New("tenancy: connection not configured")

// ConfigurationError reports a deployment that cannot produce a tenant
// configuration, such as an unknown division mode. Retrying does not help.
type ConfigurationError struct {
	Mode   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("tenancy: division mode '%s': %s", e.Mode, e.Reason)
	}
	return fmt.Sprintf("tenancy: division mode '%s' unknown", e.Mode)
}
