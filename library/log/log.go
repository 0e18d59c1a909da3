package log

import (
	"sync"

	"go.uber.org/zap"
)

// 全局日志器 默认输出到控制台 Init后可写文件
var (
	mu     sync.RWMutex
	global = newZapWrap(defaultConfig())
)

// Init 按配置重建全局日志器
func Init(opts ...Option) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	mu.Lock()
	old := global
	global = newZapWrap(c)
	mu.Unlock()

	_ = old.close()
}

// Close 刷新并关闭全局日志器
func Close() error {
	mu.RLock()
	defer mu.RUnlock()
	return global.close()
}

// SetLevel 动态调整日志级别
func SetLevel(level string) error {
	mu.RLock()
	defer mu.RUnlock()
	return global.level.UnmarshalText([]byte(level))
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global.sugar
}

func Debug(args ...any) { logger().Debug(args...) }
func Info(args ...any)  { logger().Info(args...) }
func Warn(args ...any)  { logger().Warn(args...) }
func Error(args ...any) { logger().Error(args...) }
func Fatal(args ...any) { logger().Fatal(args...) }

func Debugf(format string, args ...any) { logger().Debugf(format, args...) }
func Infof(format string, args ...any)  { logger().Infof(format, args...) }
func Warnf(format string, args ...any)  { logger().Warnf(format, args...) }
func Errorf(format string, args ...any) { logger().Errorf(format, args...) }
func Fatalf(format string, args ...any) { logger().Fatalf(format, args...) }

// With 附加结构化字段 返回独立的子日志器
func With(keysAndValues ...any) *zap.SugaredLogger {
	return logger().With(keysAndValues...)
}
