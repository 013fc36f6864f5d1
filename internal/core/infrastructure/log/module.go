package log

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/zap"

	logconfig "github.com/weisyn/provider/internal/config/log"
	logInterface "github.com/weisyn/provider/pkg/interfaces/infrastructure/log"
)

// ModuleParams 日志模块的依赖
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Options   *logconfig.LogOptions `optional:"true"`
}

// ModuleOutput 日志模块的输出
type ModuleOutput struct {
	fx.Out

	Logger    logInterface.Logger
	ZapLogger *zap.Logger
}

// Module 日志模块
func Module() fx.Option {
	return fx.Module("log",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 根据配置创建日志记录器并设为全局记录器
func ProvideServices(params ModuleParams) (ModuleOutput, error) {
	logger, err := New(logconfig.New(params.Options))
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("根据配置创建日志记录器失败: %w", err)
	}
	SetLogger(logger)

	concrete, ok := logger.(*Logger)
	if !ok {
		return ModuleOutput{}, fmt.Errorf("logger 类型断言失败，无法获取 *zap.Logger")
	}

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// 控制台输出在部分平台上 Sync 返回 EINVAL/ENOTTY
			if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
				return err
			}
			return nil
		},
	})

	return ModuleOutput{Logger: logger, ZapLogger: concrete.zapLogger}, nil
}

// NewModuleLogger 带 module 字段的 Logger
func NewModuleLogger(baseLogger logInterface.Logger, module string) logInterface.Logger {
	if baseLogger == nil {
		return nil
	}
	return baseLogger.With("module", module)
}

// NewModuleZapLogger 带 module 字段的 zap 记录器
func NewModuleZapLogger(baseLogger *zap.Logger, module string) *zap.Logger {
	if baseLogger == nil {
		return nil
	}
	return baseLogger.With(zap.String("module", module))
}
