package config

import (
	"crypto/tls"
	"sync"

	"github.com/go-redis/redis/v9"
)

// RedisConnectOptions redis 连接配置，锁和事件广播共用一个客户端
type RedisConnectOptions struct {
	Network  string `mapstructure:"network"`
	Addr     string `mapstructure:"addr" validate:"required"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"poolSize"`
	TLS      bool   `mapstructure:"tls"`
}

func (e RedisConnectOptions) GetRedisOptions() (*redis.Options, error) {
	r := &redis.Options{
		Network:  e.Network,
		Addr:     e.Addr,
		Username: e.Username,
		Password: e.Password,
		DB:       e.DB,
		PoolSize: e.PoolSize,
	}
	if e.TLS {
		r.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return r, nil
}

var (
	_redis   *redis.Client
	_redisMu sync.Mutex
)

// GetRedisClient 返回共享客户端，首次调用时按 options 创建
func GetRedisClient(options *RedisConnectOptions) (*redis.Client, error) {
	_redisMu.Lock()
	defer _redisMu.Unlock()
	if _redis != nil {
		return _redis, nil
	}
	if options == nil {
		return nil, nil
	}
	opts, err := options.GetRedisOptions()
	if err != nil {
		return nil, err
	}
	_redis = redis.NewClient(opts)
	return _redis, nil
}
