package config

// Events 事件广播配置，Redis 为空时只在进程内分发
type Events struct {
	Redis   *RedisConnectOptions `mapstructure:"redis"`
	Channel string               `mapstructure:"channel"`
	Metrics bool                 `mapstructure:"metrics"`
}

var EventsConfig = new(Events)

func (e *Events) Publishing() bool {
	return e != nil && e.Redis != nil
}
