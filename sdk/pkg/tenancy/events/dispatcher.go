// Package events 分发 tenancy 事件：同步观察者、redis 广播和指标
package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
)

// Handler observes one event. Handlers run on the emitting goroutine, so a
// ConfigurationLoading handler may still edit the configuration.
type Handler func(ctx context.Context, e tenancy.Event)

// Dispatcher is the tenancy.Sink handed to the generator and the manager.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers h for events with the given name.
func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], h)
}

// SubscribeAll registers h for every event.
func (d *Dispatcher) SubscribeAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, h)
}

// Emit calls the named handlers in registration order, then the catch-all
// ones. A panicking handler is logged and skipped.
func (d *Dispatcher) Emit(ctx context.Context, e tenancy.Event) {
	d.mu.RLock()
	hs := make([]Handler, 0, len(d.handlers[e.EventName()])+len(d.all))
	hs = append(hs, d.handlers[e.EventName()]...)
	hs = append(hs, d.all...)
	d.mu.RUnlock()

	for _, h := range hs {
		d.call(ctx, h, e)
	}
}

func (d *Dispatcher) call(ctx context.Context, h Handler, e tenancy.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tenancy event handler panicked",
				zap.String("event", e.EventName()),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	h(ctx, e)
}
