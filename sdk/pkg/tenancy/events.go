package tenancy

import (
	"context"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

// 事件名
const (
	EventConfigurationLoading    = "tenancy.configuration.loading"
	EventConfigurationLoaded     = "tenancy.configuration.loaded"
	EventConnectionSet           = "tenancy.connection.set"
	EventSharedDatabaseAllocated = "tenancy.database.allocated"
)

type Event interface {
	EventName() string
}

// ConfigurationLoading is emitted before the mode mutation. Config is the
// working copy; in bypass mode observers fill it in themselves.
type ConfigurationLoading struct {
	Mode   Mode
	Config ConnectionConfig
	Tenant *tenant.Tenant
}

func (ConfigurationLoading) EventName() string { return EventConfigurationLoading }

// ConfigurationLoaded carries the final configuration of a tenant.
type ConfigurationLoaded struct {
	Mode   Mode
	Config ConnectionConfig
	Tenant *tenant.Tenant
}

func (ConfigurationLoaded) EventName() string { return EventConfigurationLoaded }

// ConnectionSet reports a bind. Changed is false when the slot already
// served the tenant. Tenant is nil when the slot was cleared.
type ConnectionSet struct {
	Tenant     *tenant.Tenant
	Connection string
	Changed    bool
}

func (ConnectionSet) EventName() string { return EventConnectionSet }

// SharedDatabaseAllocated is emitted once per tenant, after its placement
// has been recorded.
type SharedDatabaseAllocated struct {
	Tenant     *tenant.Tenant
	Assignment tenant.Assignment
}

func (SharedDatabaseAllocated) EventName() string { return EventSharedDatabaseAllocated }

// Sink receives events synchronously, in emission order.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Emit(ctx context.Context, e Event) {
	f(ctx, e)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}

// NopSink discards every event.
func NopSink() Sink {
	return nopSink{}
}
