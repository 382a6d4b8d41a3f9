package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 顶层配置结构
type Config struct {
	Application *Application `mapstructure:"application" validate:"required"`
	Logger      *Logger      `mapstructure:"logger"`
	Database    *Database    `mapstructure:"database" validate:"required"`
	Tenancy     *Tenancy     `mapstructure:"tenancy" validate:"required"`
	Locker      *Locker      `mapstructure:"locker"`
	Etcd        *ETCDConfig  `mapstructure:"etcd"`
	Events      *Events      `mapstructure:"events"`
}

var AppConfig = &Config{
	Application: ApplicationConfig,
	Logger:      LoggerConfig,
	Database:    DatabaseConfig,
	Tenancy:     TenancyConfig,
	Locker:      LockerConfig,
	Etcd:        EtcdConfig,
	Events:      EventsConfig,
}

// _viper 保留读入的配置，database.connections.<name> 在运行时会被改写
var _viper *viper.Viper

// Viper 返回 Setup 读入的配置实例，未调用 Setup 时为空实例
func Viper() *viper.Viper {
	if _viper == nil {
		_viper = viper.New()
	}
	return _viper
}

// Setup 读取配置文件并映射到 AppConfig，环境变量 JXT_TENANCY_* 可覆盖同名配置
func Setup(configYml string) error {
	v := viper.New()
	v.SetConfigFile(configYml)
	v.SetEnvPrefix("jxt")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(AppConfig); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := Validate(AppConfig); err != nil {
		return err
	}

	_viper = v
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.mode", ModeDev)
	v.SetDefault("application.port", 8000)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.path", "./logs")
	v.SetDefault("logger.maxSize", 50)
	v.SetDefault("logger.infoMaxAge", 3)
	v.SetDefault("logger.errorMaxAge", 14)
	v.SetDefault("logger.maxBackups", 20)
	v.SetDefault("tenancy.divisionMode", "database")
	v.SetDefault("tenancy.systemConnectionName", DefaultSystemConnectionName)
	v.SetDefault("tenancy.tenantConnectionName", DefaultTenantConnectionName)
	v.SetDefault("tenancy.tenantsPerDatabase", DefaultTenantsPerDatabase)
}

var validate = validator.New()

// Validate 校验结构体 tag
func Validate(c *Config) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}
