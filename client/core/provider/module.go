package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/config"
	infraClock "github.com/weisyn/provider/pkg/interfaces/infrastructure/clock"
)

// dialTimeout 模块启动时建立连接的超时
const dialTimeout = 15 * time.Second

// ModuleParams 会话模块的依赖
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Options
	Logger    *zap.Logger      `optional:"true"`
	Clock     infraClock.Clock `optional:"true"`
}

// Module 会话模块
func Module() fx.Option {
	return fx.Module("provider",
		fx.Provide(ProvideProvider),
	)
}

// ProvideProvider 按配置建立会话，应用停止时关闭
func ProvideProvider(params ModuleParams) (*Provider, error) {
	opts := OptionsFromConfig(params.Config, params.Logger)
	opts.Clock = params.Clock

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	p, err := Dial(ctx, params.Config.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("连接节点失败: %w", err)
	}

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})
	return p, nil
}
