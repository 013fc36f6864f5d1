// Package log 定义日志记录接口
//
// 库内各组件直接接收 *zap.Logger；Logger 接口供命令行与依赖注入层使用，
// 需要结构化字段时通过 GetZapLogger 取得底层实现。
package log

import "go.uber.org/zap"

// Logger 日志记录器
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})

	// With 返回带有额外键值对的 Logger
	With(args ...interface{}) Logger

	// Sync 刷新缓冲区
	Sync() error

	// GetZapLogger 底层 zap 记录器
	GetZapLogger() *zap.Logger
}
