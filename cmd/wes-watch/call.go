package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weisyn/provider/client/core/provider"
)

var (
	pollInterval time.Duration // 轮询间隔
	pollLimit    int           // 轮询次数
)

// parseParams 解析 JSON 参数；为空时不带参数
func parseParams(args []string) (interface{}, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, nil
	}
	raw := json.RawMessage(args[0])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("params is not valid JSON: %s", args[0])
	}
	return raw, nil
}

// callCmd 调用任意 RPC 方法
var callCmd = &cobra.Command{
	Use:     "call <method> [params-json]",
	Short:   "调用 RPC 方法",
	Example: `  wes-watch call eth_getBlockByNumber '["latest", false]'`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		return withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
			result, err := p.Raw(ctx, args[0], params)
			if err != nil {
				return err
			}
			return formatter.Print(result)
		})
	},
}

// pollCmd 按间隔重复调用
var pollCmd = &cobra.Command{
	Use:     "poll <method> [params-json]",
	Short:   "按间隔重复调用 RPC 方法",
	Example: `  wes-watch poll eth_blockNumber --interval 2s --limit 5`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		return withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
			ch := provider.Poll[json.RawMessage](p, args[0], params).
				WithPollInterval(pollInterval).
				WithLimit(pollLimit).
				Spawn(ctx)
			defer ch.Close()

			for result := range ch.Chan(ctx) {
				if err := formatter.Print(result); err != nil {
					return err
				}
			}
			if lagged := ch.Lagged(); lagged > 0 {
				formatter.PrintInfo(fmt.Sprintf("输出过慢，丢弃了 %d 个结果", lagged))
			}
			return nil
		})
	},
}

func init() {
	pollCmd.Flags().DurationVar(&pollInterval, "interval", 0, "轮询间隔 (默认取配置)")
	pollCmd.Flags().IntVar(&pollLimit, "limit", 0, "轮询次数 (0 表示不限)")
}
