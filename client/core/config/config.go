// Package config 客户端配置
//
// 配置来源按优先级：WES_ 前缀环境变量 > 配置文件（yaml/json/toml）> 默认值。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	logconfig "github.com/weisyn/provider/internal/config/log"
)

// EnvPrefix 环境变量前缀，例如 WES_ENDPOINT、WES_POLL_INTERVAL
const EnvPrefix = "WES"

// Options 客户端配置
type Options struct {
	// Endpoint 节点地址：http(s):// 使用轮询，ws(s):// 使用推送
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`

	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	WSHandshakeTimeout time.Duration `mapstructure:"ws_handshake_timeout"`
	WSPingInterval     time.Duration `mapstructure:"ws_ping_interval"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff   time.Duration `mapstructure:"reconnect_backoff"`

	// PollInterval 为 0 时按端点推断：本机 250ms，远端 7s
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollChannelSize int           `mapstructure:"poll_channel_size"`
	PollMaxRetries  int           `mapstructure:"poll_max_retries"`

	SubscriptionBuffer   int `mapstructure:"subscription_buffer"`
	HeartbeatChannelSize int `mapstructure:"heartbeat_channel_size"`

	DefaultConfirmations uint64        `mapstructure:"default_confirmations"`
	DefaultTimeout       time.Duration `mapstructure:"default_timeout"`

	// MetricsAddr 非空时暴露 Prometheus 指标，例如 :9100
	MetricsAddr string `mapstructure:"metrics_addr"`

	Log logconfig.LogOptions `mapstructure:"log"`
}

// Default 默认配置
func Default() *Options {
	return &Options{
		Endpoint:             defaultEndpoint,
		RequestTimeout:       defaultRequestTimeout,
		WSHandshakeTimeout:   defaultWSHandshakeTimeout,
		WSPingInterval:       defaultWSPingInterval,
		ReconnectAttempts:    defaultReconnectAttempts,
		ReconnectBackoff:     defaultReconnectBackoff,
		PollChannelSize:      defaultPollChannelSize,
		PollMaxRetries:       defaultPollMaxRetries,
		SubscriptionBuffer:   defaultSubscriptionBuffer,
		HeartbeatChannelSize: defaultHeartbeatChannelSize,
		DefaultConfirmations: defaultConfirmations,
		Log:                  *logconfig.DefaultOptions(),
	}
}

// Load 读取配置；path 为空时只使用环境变量与默认值
func Load(path string) (*Options, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	}

	opts := &Options{}
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// setDefaults 注册全部键，AutomaticEnv 只对已知键生效
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("ws_handshake_timeout", d.WSHandshakeTimeout)
	v.SetDefault("ws_ping_interval", d.WSPingInterval)
	v.SetDefault("reconnect_attempts", d.ReconnectAttempts)
	v.SetDefault("reconnect_backoff", d.ReconnectBackoff)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("poll_channel_size", d.PollChannelSize)
	v.SetDefault("poll_max_retries", d.PollMaxRetries)
	v.SetDefault("subscription_buffer", d.SubscriptionBuffer)
	v.SetDefault("heartbeat_channel_size", d.HeartbeatChannelSize)
	v.SetDefault("default_confirmations", d.DefaultConfirmations)
	v.SetDefault("default_timeout", d.DefaultTimeout)
	v.SetDefault("metrics_addr", d.MetricsAddr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.to_console", d.Log.ToConsole)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.console_format", d.Log.ConsoleFormat)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.enable_caller", d.Log.EnableCaller)
	v.SetDefault("log.enable_stacktrace", d.Log.EnableStacktrace)
}

// Validate 检查配置
func (o *Options) Validate() error {
	if o.Endpoint == "" {
		return errors.New("endpoint 不能为空")
	}
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint 无效: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("endpoint 协议不支持: %q", u.Scheme)
	}
	if o.PollMaxRetries < 0 {
		return errors.New("poll_max_retries 不能为负数")
	}
	if o.RequestTimeout < 0 || o.PollInterval < 0 || o.DefaultTimeout < 0 {
		return errors.New("时间配置不能为负数")
	}
	return nil
}

// IsPubSub 端点是否支持推送
func (o *Options) IsPubSub() bool {
	return strings.HasPrefix(o.Endpoint, "ws://") || strings.HasPrefix(o.Endpoint, "wss://")
}
