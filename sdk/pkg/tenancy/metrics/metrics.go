// Package metrics exports tenancy events as prometheus counters.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
)

const namespace = "tenancy"

type Collector struct {
	configurations *prometheus.CounterVec
	connectionSets *prometheus.CounterVec
	allocations    *prometheus.CounterVec
}

func NewCollector() *Collector {
	return &Collector{
		configurations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configurations_generated_total",
			Help:      "Tenant connection configurations generated, by division mode.",
		}, []string{"mode"}),
		connectionSets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_sets_total",
			Help:      "Connection slot binds, by slot and whether the tenant changed.",
		}, []string{"connection", "changed"}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_database_allocations_total",
			Help:      "Tenants placed into a shared database.",
		}, []string{"database"}),
	}
}

// Register 注册到给定的 registerer，nil 时使用默认注册表
func (c *Collector) Register(r prometheus.Registerer) error {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	for _, col := range []prometheus.Collector{c.configurations, c.connectionSets, c.allocations} {
		if err := r.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Handle counts an event; it matches events.Handler.
func (c *Collector) Handle(_ context.Context, e tenancy.Event) {
	switch ev := e.(type) {
	case tenancy.ConfigurationLoaded:
		c.configurations.WithLabelValues(ev.Mode.String()).Inc()
	case tenancy.ConnectionSet:
		c.connectionSets.WithLabelValues(ev.Connection, strconv.FormatBool(ev.Changed)).Inc()
	case tenancy.SharedDatabaseAllocated:
		c.allocations.WithLabelValues(ev.Assignment.Database).Inc()
	}
}
