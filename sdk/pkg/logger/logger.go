package logger

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ContextKey string

const (
	TrafficKey ContextKey = "X-Request-Id"
	LoggerKey  ContextKey = "_jxt-tenancy-zap-logger-request"
)

var (
	Logger        = zap.NewNop()   //全局ZapLogger打印
	DefaultLogger = Logger.Sugar() //全局SugarLogger打印，用于简易打印
)

// SetRequestLogger gin 中间件：为每个请求挂一个带 request id 的 logger
func SetRequestLogger(c *gin.Context) {
	requestID := c.GetHeader(string(TrafficKey))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := context.WithValue(c.Request.Context(), TrafficKey, requestID)
	ctx = WithContext(ctx, Logger.With(zap.String("request_id", requestID)))
	c.Request = c.Request.WithContext(ctx)
	c.Header(string(TrafficKey), requestID)
	c.Next()
}

// WithContext 把 logger 放进 ctx，租户识别后会追加租户字段
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// FromContext 从上下文获得logger，没有时返回全局 Logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return l
	}
	return Logger
}

func GetRequestLogger(c *gin.Context) *zap.Logger {
	return FromContext(c.Request.Context())
}

func Infof(template string, args ...interface{}) {
	DefaultLogger.Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	DefaultLogger.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	DefaultLogger.Errorf(template, args...)
}

// Fatalf 记录后退出进程
func Fatalf(template string, args ...interface{}) {
	DefaultLogger.Fatalf(template, args...)
}
