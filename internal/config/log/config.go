// Package log 日志配置
package log

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// LogOptions 日志配置选项
type LogOptions struct {
	Level     string `json:"level" mapstructure:"level"`           // debug, info, warn, error, fatal
	ToConsole bool   `json:"to_console" mapstructure:"to_console"` // 是否输出到控制台
	FilePath  string `json:"file_path" mapstructure:"file_path"`   // 日志文件路径，stdout/stderr 表示控制台

	// ConsoleFormat 控制台编码：console 或 json
	ConsoleFormat string `json:"console_format" mapstructure:"console_format"`

	MaxSize    int  `json:"max_size" mapstructure:"max_size"`       // 单个日志文件最大大小(MB)
	MaxBackups int  `json:"max_backups" mapstructure:"max_backups"` // 最大备份文件数
	MaxAge     int  `json:"max_age" mapstructure:"max_age"`         // 日志文件最大保留天数
	Compress   bool `json:"compress" mapstructure:"compress"`       // 是否压缩历史日志文件

	EnableCaller     bool `json:"enable_caller" mapstructure:"enable_caller"`
	EnableStacktrace bool `json:"enable_stacktrace" mapstructure:"enable_stacktrace"`
}

// DefaultOptions 默认日志配置
func DefaultOptions() *LogOptions {
	return &LogOptions{
		Level:            defaultLogLevel,
		ToConsole:        defaultToConsole,
		FilePath:         defaultFilePath,
		ConsoleFormat:    defaultConsoleFormat,
		MaxSize:          defaultMaxSize,
		MaxBackups:       defaultMaxBackups,
		MaxAge:           defaultMaxAge,
		Compress:         defaultCompress,
		EnableCaller:     defaultEnableCaller,
		EnableStacktrace: defaultEnableStacktrace,
	}
}

// Config 日志配置实现
type Config struct {
	options *LogOptions
}

// New 创建日志配置；opts 为 nil 时使用默认值，未设置的轮转参数取默认值
func New(opts *LogOptions) *Config {
	if opts == nil {
		return &Config{options: DefaultOptions()}
	}
	merged := *opts
	if merged.Level == "" {
		merged.Level = defaultLogLevel
	}
	merged.Level = strings.ToLower(merged.Level)
	if merged.ConsoleFormat == "" {
		merged.ConsoleFormat = defaultConsoleFormat
	}
	if merged.MaxSize <= 0 {
		merged.MaxSize = defaultMaxSize
	}
	if merged.MaxBackups <= 0 {
		merged.MaxBackups = defaultMaxBackups
	}
	if merged.MaxAge <= 0 {
		merged.MaxAge = defaultMaxAge
	}
	return &Config{options: &merged}
}

// GetOptions 完整的日志配置选项
func (c *Config) GetOptions() *LogOptions {
	return c.options
}

// GetLevel 日志级别名称
func (c *Config) GetLevel() string {
	return c.options.Level
}

// GetZapLevel zap 日志级别，未知名称按 info 处理
func (c *Config) GetZapLevel() zapcore.Level {
	if level, exists := defaultLevelMap[c.options.Level]; exists {
		return level
	}
	return zapcore.InfoLevel
}

// IsConsoleEnabled 是否启用控制台输出
func (c *Config) IsConsoleEnabled() bool {
	return c.options.ToConsole
}

// GetFilePath 日志文件路径
func (c *Config) GetFilePath() string {
	return c.options.FilePath
}

// GetMaxSize 单个文件最大大小(MB)
func (c *Config) GetMaxSize() int {
	return c.options.MaxSize
}

// GetMaxBackups 最大备份文件数
func (c *Config) GetMaxBackups() int {
	return c.options.MaxBackups
}

// GetMaxAge 最大保留天数
func (c *Config) GetMaxAge() int {
	return c.options.MaxAge
}

// IsCompressionEnabled 是否启用压缩
func (c *Config) IsCompressionEnabled() bool {
	return c.options.Compress
}

// IsCallerEnabled 是否启用调用者信息
func (c *Config) IsCallerEnabled() bool {
	return c.options.EnableCaller
}

// IsStacktraceEnabled 是否启用堆栈跟踪
func (c *Config) IsStacktraceEnabled() bool {
	return c.options.EnableStacktrace
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}
}

// CreateFileEncoder 文件编码器，固定为 JSON
func (c *Config) CreateFileEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(encoderConfig())
}

// CreateConsoleEncoder 控制台编码器
func (c *Config) CreateConsoleEncoder() zapcore.Encoder {
	if c.options.ConsoleFormat == "json" {
		return zapcore.NewJSONEncoder(encoderConfig())
	}
	cfg := encoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}
