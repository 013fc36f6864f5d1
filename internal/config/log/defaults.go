package log

import (
	"go.uber.org/zap/zapcore"
)

// 日志配置默认值
const (
	defaultLogLevel = "info"

	// defaultToConsole 未指定文件时输出到控制台
	defaultToConsole = true

	// defaultFilePath 空表示不写文件
	defaultFilePath = ""

	// 轮转：单文件 MB、备份数、保留天数
	defaultMaxSize    = 100
	defaultMaxBackups = 10
	defaultMaxAge     = 30
	defaultCompress   = true

	defaultEnableCaller     = false
	defaultEnableStacktrace = true

	// defaultConsoleFormat console 或 json
	defaultConsoleFormat = "console"
)

var defaultLevelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"panic": zapcore.PanicLevel,
	"fatal": zapcore.FatalLevel,
}
