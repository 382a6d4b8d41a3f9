package config

type Logger struct {
	Path            string `mapstructure:"path"`            // 日志文件目录
	Level           string `mapstructure:"level"`           // 日志级别
	Stdout          bool   `mapstructure:"stdout"`          // 是否输出到控制台
	MaxSize         int    `mapstructure:"maxSize"`         // 每个日志文件最大多少MB
	ErrorMaxAge     int    `mapstructure:"errorMaxAge"`     // error日志保留天数
	InfoMaxAge      int    `mapstructure:"infoMaxAge"`      // info日志保留天数
	MaxBackups      int    `mapstructure:"maxBackups"`      // 日志文件保留个数
	EnabledDB       bool   `mapstructure:"enabledDB"`       // 是否打印 SQL
	GormLoggerLevel int    `mapstructure:"gormLoggerLevel"` // 4：Info，3 Warn，2 Error，1 Silent
}

var LoggerConfig = new(Logger)
