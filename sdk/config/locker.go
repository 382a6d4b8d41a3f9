package config

import (
	"time"

	"github.com/bsm/redislock"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy/allocator"
)

// Locker 分配锁配置
type Locker struct {
	Redis  *RedisConnectOptions `mapstructure:"redis"`
	Prefix string               `mapstructure:"prefix"`
	TTL    int                  `mapstructure:"ttl" validate:"gte=0"` // 秒
}

var LockerConfig = new(Locker)

// Empty 空设置
func (e *Locker) Empty() bool {
	return e == nil || e.Redis == nil
}

func (e *Locker) ttl() time.Duration {
	if e == nil || e.TTL <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.TTL) * time.Second
}

// Setup 启用顺序 redis > etcd > 进程内锁
func (e *Locker) Setup(etcd *ETCDConfig) (allocator.Locker, error) {
	var prefix string
	if e != nil {
		prefix = e.Prefix
	}
	if !e.Empty() {
		client, err := GetRedisClient(e.Redis)
		if err != nil {
			return nil, err
		}
		return allocator.NewRedisLocker(redislock.New(client), prefix, e.ttl()), nil
	}
	if etcd.IsEnabled() {
		client, err := etcd.Client()
		if err != nil {
			return nil, err
		}
		return allocator.NewEtcdLocker(client, etcd.GetNamespacedKey(prefix), int(e.ttl()/time.Second)), nil
	}
	return allocator.NewLocalLocker(), nil
}
