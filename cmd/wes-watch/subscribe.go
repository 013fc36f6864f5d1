package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weisyn/provider/client/core/provider"
)

// subscribeCmd 订阅推送
var subscribeCmd = &cobra.Command{
	Use:     "subscribe <params-json>",
	Short:   "通过 eth_subscribe 订阅推送 (需要 ws 端点)",
	Example: `  wes-watch subscribe '["newHeads"]' -e ws://127.0.0.1:8546`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args)
		if err != nil {
			return err
		}
		return withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
			sub, err := p.Subscribe(ctx, params)
			if err != nil {
				return err
			}
			formatter.PrintInfo(fmt.Sprintf("订阅已建立: %s", sub.Alias.Hex()))
			defer func() {
				if err := p.Unsubscribe(context.WithoutCancel(ctx), sub.Alias); err != nil {
					formatter.PrintError(err)
				}
			}()

			for {
				item, err := sub.Receiver.Recv(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				if err := formatter.Print(json.RawMessage(item)); err != nil {
					return err
				}
			}
		})
	},
}
