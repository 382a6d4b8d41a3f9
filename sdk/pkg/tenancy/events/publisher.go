package events

import (
	"context"
	"time"

	"github.com/go-redis/redis/v9"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/json"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

// DefaultChannel redis 广播频道
const DefaultChannel = "tenancy:events"

// Publisher is the part of a redis client the publisher needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Message is the wire form of a tenancy event. Passwords never leave the
// process.
type Message struct {
	Event      string                   `json:"event"`
	TenantID   int                      `json:"tenant_id,omitempty"`
	TenantUUID string                   `json:"tenant_uuid,omitempty"`
	Mode       string                   `json:"mode,omitempty"`
	Connection string                   `json:"connection,omitempty"`
	Changed    *bool                    `json:"changed,omitempty"`
	Config     tenancy.ConnectionConfig `json:"config,omitempty"`
	Assignment *tenant.Assignment       `json:"assignment,omitempty"`
	At         time.Time                `json:"at"`
}

// RedisPublisher broadcasts events so other processes can drop cached
// connections of a tenant.
type RedisPublisher struct {
	client  Publisher
	channel string
	logger  *zap.Logger
	now     func() time.Time
}

func NewRedisPublisher(client Publisher, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger, now: time.Now}
}

// Handle is a Handler; publish failures are logged, never returned to the
// emitter.
func (p *RedisPublisher) Handle(ctx context.Context, e tenancy.Event) {
	payload, err := json.Marshal(NewMessage(e, p.now()))
	if err != nil {
		p.logger.Error("encode tenancy event failed", zap.String("event", e.EventName()), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("publish tenancy event failed",
			zap.String("event", e.EventName()),
			zap.String("channel", p.channel),
			zap.Error(err))
	}
}

func NewMessage(e tenancy.Event, at time.Time) Message {
	m := Message{Event: e.EventName(), At: at.UTC()}
	withTenant := func(t *tenant.Tenant) {
		if t != nil {
			m.TenantID = t.ID
			m.TenantUUID = t.UUID
		}
	}
	switch ev := e.(type) {
	case tenancy.ConfigurationLoading:
		withTenant(ev.Tenant)
		m.Mode = ev.Mode.String()
	case tenancy.ConfigurationLoaded:
		withTenant(ev.Tenant)
		m.Mode = ev.Mode.String()
		m.Config = ev.Config.Redacted()
	case tenancy.ConnectionSet:
		withTenant(ev.Tenant)
		changed := ev.Changed
		m.Connection = ev.Connection
		m.Changed = &changed
	case tenancy.SharedDatabaseAllocated:
		withTenant(ev.Tenant)
		a := ev.Assignment
		m.Assignment = &a
	}
	return m
}
