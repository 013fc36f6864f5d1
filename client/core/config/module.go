package config

import (
	"go.uber.org/fx"

	logconfig "github.com/weisyn/provider/internal/config/log"
)

// Module 提供客户端配置以及其中的日志配置
func Module(opts *Options) fx.Option {
	if opts == nil {
		opts = Default()
	}
	return fx.Module("config",
		fx.Supply(opts),
		fx.Provide(func(o *Options) *logconfig.LogOptions { return &o.Log }),
	)
}
