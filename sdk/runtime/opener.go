package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/crypto"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/logger"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy"
)

// Opener establishes and tears down physical connections.
type Opener interface {
	Open(ctx context.Context, name string, c tenancy.ConnectionConfig) (*gorm.DB, error)
	Close(db *gorm.DB) error
}

var errNoDecrypter = errors.New("password is encrypted but no encryption key is configured")

// GormOpener 根据连接配置打开 mysql/postgres 连接，支持读副本和加密密码
type GormOpener struct {
	decrypter    crypto.Decrypter
	logger       *zap.Logger
	gormLogLevel int
}

type OpenerOption func(*GormOpener)

func WithDecrypter(d crypto.Decrypter) OpenerOption {
	return func(o *GormOpener) { o.decrypter = d }
}

func WithOpenerLogger(l *zap.Logger, gormLogLevel int) OpenerOption {
	return func(o *GormOpener) {
		if l != nil {
			o.logger = l
		}
		o.gormLogLevel = gormLogLevel
	}
}

func NewGormOpener(opts ...OpenerOption) *GormOpener {
	o := &GormOpener{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *GormOpener) Open(ctx context.Context, name string, c tenancy.ConnectionConfig) (*gorm.DB, error) {
	dialector, err := o.dialector(c)
	if err != nil {
		return nil, fmt.Errorf("connection %s: %w", name, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{TablePrefix: c.String(tenancy.KeyPrefix)},
		Logger:         logger.NewGormLogger(o.logger, o.gormLogLevel, name),
	})
	if err != nil {
		return nil, fmt.Errorf("open connection %s: %w", name, err)
	}

	if err := o.useReplicas(db, c); err != nil {
		_ = o.Close(db)
		return nil, fmt.Errorf("connection %s replicas: %w", name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if n := c.Int(tenancy.KeyMaxIdleConns); n > 0 {
		sqlDB.SetMaxIdleConns(n)
	}
	if n := c.Int(tenancy.KeyMaxOpenConns); n > 0 {
		sqlDB.SetMaxOpenConns(n)
	}
	if n := c.Int(tenancy.KeyConnMaxLifetime); n > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(n) * time.Second)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping connection %s: %w", name, err)
	}

	o.logger.Info("database connection established",
		zap.String("connection", name),
		zap.String("driver", driverOf(c)),
		zap.String("database", c.String(tenancy.KeyDatabase)))
	return db, nil
}

func (o *GormOpener) Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (o *GormOpener) dialector(c tenancy.ConnectionConfig) (gorm.Dialector, error) {
	password, err := o.password(c)
	if err != nil {
		return nil, err
	}
	switch driverOf(c) {
	case "mysql":
		return mysql.Open(MySQLDSN(c, password)), nil
	case "postgres", "pgsql":
		return postgres.Open(PostgresDSN(c, password)), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", c.String(tenancy.KeyDriver))
	}
}

func (o *GormOpener) password(c tenancy.ConnectionConfig) (string, error) {
	password := c.String(tenancy.KeyPassword)
	if !c.Bool(tenancy.KeyPasswordEncrypted) {
		return password, nil
	}
	if o.decrypter == nil {
		return "", errNoDecrypter
	}
	return o.decrypter.Decrypt(password)
}

// useReplicas 每个副本覆盖主配置中的同名键
func (o *GormOpener) useReplicas(db *gorm.DB, c tenancy.ConnectionConfig) error {
	raw, ok := c[tenancy.KeyReplicas].([]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	replicas := make([]gorm.Dialector, 0, len(raw))
	for i, r := range raw {
		override, ok := r.(map[string]interface{})
		if !ok {
			return fmt.Errorf("replica %d is not a map", i)
		}
		merged := c.Clone()
		delete(merged, tenancy.KeyReplicas)
		for k, v := range override {
			merged[k] = v
		}
		d, err := o.dialector(merged)
		if err != nil {
			return fmt.Errorf("replica %d: %w", i, err)
		}
		replicas = append(replicas, d)
	}
	return db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   dbresolver.RandomPolicy{},
	}))
}

func driverOf(c tenancy.ConnectionConfig) string {
	d := strings.ToLower(c.String(tenancy.KeyDriver))
	if d == "" {
		return "mysql"
	}
	return d
}

// MySQLDSN builds a go-sql-driver DSN from a connection config.
func MySQLDSN(c tenancy.ConnectionConfig, password string) string {
	cfg := mysqldrv.NewConfig()
	cfg.User = c.String(tenancy.KeyUsername)
	cfg.Passwd = password
	cfg.Net = "tcp"
	port := c.Int(tenancy.KeyPort)
	if port == 0 {
		port = 3306
	}
	cfg.Addr = net.JoinHostPort(c.String(tenancy.KeyHost), strconv.Itoa(port))
	cfg.DBName = c.String(tenancy.KeyDatabase)
	cfg.ParseTime = true
	charset := c.String(tenancy.KeyCharset)
	if charset == "" {
		charset = "utf8mb4"
	}
	cfg.Params = map[string]string{"charset": charset}
	return cfg.FormatDSN()
}

// PostgresDSN builds a key/value DSN; the schema becomes the search_path.
func PostgresDSN(c tenancy.ConnectionConfig, password string) string {
	port := c.Int(tenancy.KeyPort)
	if port == 0 {
		port = 5432
	}
	sslmode := c.String(tenancy.KeySSLMode)
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		"host=" + quoteDSN(c.String(tenancy.KeyHost)),
		"port=" + strconv.Itoa(port),
		"user=" + quoteDSN(c.String(tenancy.KeyUsername)),
		"password=" + quoteDSN(password),
		"dbname=" + quoteDSN(c.String(tenancy.KeyDatabase)),
		"sslmode=" + sslmode,
	}
	if s := c.String(tenancy.KeySchema); s != "" {
		parts = append(parts, "search_path="+quoteDSN(s))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}
