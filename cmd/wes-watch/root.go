package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/weisyn/provider/client/core/config"
	"github.com/weisyn/provider/client/core/output"
	"github.com/weisyn/provider/client/core/provider"
	logimpl "github.com/weisyn/provider/internal/core/infrastructure/log"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigFile   string // 配置文件
	Endpoint     string // 覆盖配置中的节点地址
	LogLevel     string // 覆盖日志级别
	MetricsAddr  string // 指标监听地址
	OutputFormat string // 输出格式
	Silent       bool   // 只输出数据
}

// startTimeout 启动与停止 fx 应用的超时
const startTimeout = 30 * time.Second

var (
	globalFlags GlobalFlags
	formatter   *output.Formatter
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "wes-watch",
	Short: "WES 节点会话工具",
	Long: `wes-watch - 基于 JSON-RPC 的节点会话工具

支持 http(s) 与 ws(s) 端点:
- 查询链状态、调用任意 RPC 方法
- 订阅新区块或按间隔轮询
- 广播交易并跟踪确认深度

配置优先级: 命令行标志 > WES_ 环境变量 > 配置文件 > 默认值`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(globalFlags.OutputFormat)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, os.Stdout)
		formatter.SetSilent(globalFlags.Silent)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "配置文件 (yaml/json/toml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Endpoint, "endpoint", "e", "", "节点地址，例如 http://127.0.0.1:8545 或 ws://127.0.0.1:8546")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "日志级别: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&globalFlags.MetricsAddr, "metrics-addr", "", "Prometheus 指标监听地址，例如 :9100")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.OutputFormat, "output", "o", "json", "输出格式: json|pretty|text")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Silent, "silent", false, "静默模式 (仅输出结果)")

	rootCmd.AddCommand(headCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sendCmd)
}

// loadConfig 读取配置并应用命令行覆盖
func loadConfig() (*config.Options, error) {
	cfg, err := config.Load(globalFlags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if globalFlags.Endpoint != "" {
		cfg.Endpoint = globalFlags.Endpoint
	}
	if globalFlags.LogLevel != "" {
		cfg.Log.Level = globalFlags.LogLevel
	}
	if globalFlags.MetricsAddr != "" {
		cfg.MetricsAddr = globalFlags.MetricsAddr
	}
	// 日志写到 stderr，标准输出只留给数据
	if cfg.Log.FilePath == "" && cfg.Log.ToConsole {
		cfg.Log.FilePath = "stderr"
	}
	return cfg, cfg.Validate()
}

// withProvider 启动会话，执行 fn 后按生命周期关闭
func withProvider(cmd *cobra.Command, fn func(ctx context.Context, p *provider.Provider) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var p *provider.Provider
	app := fx.New(
		fx.NopLogger,
		config.Module(cfg),
		logimpl.Module(),
		provider.Module(),
		fx.Invoke(registerMetricsServer),
		fx.Populate(&p),
	)

	startCtx, cancel := context.WithTimeout(cmd.Context(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			formatter.PrintError(err)
		}
	}()

	return fn(cmd.Context(), p)
}
