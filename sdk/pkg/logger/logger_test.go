package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/config"
)

func TestSetup_WritesRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	l := Setup(&config.Logger{Path: dir, Level: "info", MaxSize: 1})
	t.Cleanup(func() { Logger = zap.NewNop(); DefaultLogger = Logger.Sugar() })

	l.Info("tenant bound")
	l.Error("bind failed")
	_ = l.Sync()

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "tenant bound")
	assert.NotContains(t, string(info), "bind failed")

	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "bind failed")
}

func TestSetup_NoOutputs(t *testing.T) {
	l := Setup(nil)
	t.Cleanup(func() { Logger = zap.NewNop(); DefaultLogger = Logger.Sugar() })
	assert.NotNil(t, l)
	assert.NotPanics(t, func() { Infof("nothing %d", 1) })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), int(gormlogger.Info), "tenant").(*GormLogger)
	gl.SlowThreshold = 10 * time.Millisecond

	sql := func() (string, int64) { return "SELECT 1", 1 }
	gl.Trace(context.Background(), time.Now(), sql, nil)
	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	gl.Trace(context.Background(), time.Now(), sql, errors.New("deadlock"))
	gl.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)

	msgs := make([]string, 0, logs.Len())
	for _, e := range logs.All() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"SQL", "慢SQL", "SQL错误", "SQL"}, msgs)
	assert.Equal(t, "tenant", logs.All()[0].ContextMap()["connection"])

	silent := gl.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, errors.New("ignored"))
	assert.Equal(t, 4, logs.Len())
}

func TestSetRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SetRequestLogger)

	var got *zap.Logger
	r.GET("/", func(c *gin.Context) {
		got = GetRequestLogger(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get("X-Request-Id"))
	assert.NotNil(t, got)
	assert.Same(t, Logger, FromContext(context.Background()))
}
