package config

import (
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ETCDConfig ETCD配置
type ETCDConfig struct {
	Enabled     bool     `mapstructure:"enabled" json:"enabled"`         // 是否启用ETCD
	Hosts       []string `mapstructure:"hosts" json:"hosts"`             // ETCD主机列表
	Username    string   `mapstructure:"username" json:"username"`       // 用户名
	Password    string   `mapstructure:"password" json:"password"`       // 密码
	Namespace   string   `mapstructure:"namespace" json:"namespace"`     // 键前缀，分配锁和连接模板共用
	DialTimeout int      `mapstructure:"dialTimeout" json:"dialTimeout"` // 连接超时(秒)
}

var EtcdConfig = new(ETCDConfig)

// IsEnabled 检查etcd是否启用
func (e *ETCDConfig) IsEnabled() bool {
	return e != nil && e.Enabled && len(e.Hosts) > 0
}

// GetNamespacedKey 获取带命名空间的键名
func (e *ETCDConfig) GetNamespacedKey(key string) string {
	if e == nil || e.Namespace == "" {
		return key
	}
	return e.Namespace + key
}

func (e *ETCDConfig) GetDialTimeout() time.Duration {
	if e == nil || e.DialTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.DialTimeout) * time.Second
}

// Client 创建 etcd 客户端，调用方负责 Close
func (e *ETCDConfig) Client() (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   e.Hosts,
		Username:    e.Username,
		Password:    e.Password,
		DialTimeout: e.GetDialTimeout(),
	})
}
