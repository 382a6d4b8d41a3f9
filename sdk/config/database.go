package config

// Database database.connections 下每个连接是一份松散的 key/value 模板，
// 字段含义见 tenancy.Key* 常量
type Database struct {
	Connections map[string]map[string]interface{} `mapstructure:"connections"`
}

var DatabaseConfig = new(Database)

// Has 判断模板是否存在
func (d *Database) Has(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.Connections[name]
	return ok
}
