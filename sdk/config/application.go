package config

const (
	ModeDev  = "dev"
	ModeTest = "test"
	ModeProd = "prod"
)

// Application 应用程序配置
type Application struct {
	Name string `mapstructure:"name" json:"name"`
	Mode string `mapstructure:"mode" json:"mode" validate:"omitempty,oneof=dev test prod"`
	Port int    `mapstructure:"port" json:"port"`
}

var ApplicationConfig = new(Application)

// IsProduction 生产环境下迁移和填充需要显式 force
func (a *Application) IsProduction() bool {
	return a != nil && a.Mode == ModeProd
}
