package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/weisyn/provider/client/core/provider"
)

var (
	txConfirmations uint64        // 确认深度
	txTimeout       time.Duration // 上链超时
	txReceipt       bool          // 确认后输出回执
	txNoWait        bool          // 广播后不等待
)

// watchResult 确认结果
type watchResult struct {
	TxHash        common.Hash `json:"txHash"`
	Confirmations uint64      `json:"confirmations"`
	Confirmed     bool        `json:"confirmed"`
}

// watchTx 按标志配置并等待确认
func watchTx(ctx context.Context, cmd *cobra.Command, b *provider.PendingTransactionBuilder) error {
	if cmd.Flags().Changed("confirmations") {
		b.WithConfirmations(txConfirmations)
	}
	if cmd.Flags().Changed("timeout") {
		b.WithTimeout(txTimeout)
	}
	formatter.PrintInfo("等待确认: " + b.TxHash().Hex())

	if txReceipt {
		receipt, err := b.GetReceipt(ctx)
		if err != nil {
			return err
		}
		return formatter.Print(receipt)
	}
	hash, err := b.Watch(ctx)
	if err != nil {
		return err
	}
	return formatter.Print(watchResult{
		TxHash:        hash,
		Confirmations: b.Config().Confirmations,
		Confirmed:     true,
	})
}

func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&txConfirmations, "confirmations", 1, "确认深度 (默认取配置)")
	cmd.Flags().DurationVar(&txTimeout, "timeout", 0, "上链超时 (默认取配置，0 表示不超时)")
	cmd.Flags().BoolVar(&txReceipt, "receipt", false, "确认后输出交易回执")
}

// watchCmd 跟踪已广播交易
var watchCmd = &cobra.Command{
	Use:   "watch <tx-hash>",
	Short: "等待交易达到确认深度",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hexutil.Decode(args[0])
		if err != nil || len(raw) != common.HashLength {
			return fmt.Errorf("invalid transaction hash %q", args[0])
		}
		hash := common.BytesToHash(raw)
		return withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
			return watchTx(ctx, cmd, p.PendingTransaction(hash))
		})
	},
}

// sendCmd 广播交易
var sendCmd = &cobra.Command{
	Use:   "send <raw-tx-hex>",
	Short: "广播已签名交易并等待确认",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hexutil.Decode(args[0])
		if err != nil {
			return err
		}
		return withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
			b, err := p.SendRawTransaction(ctx, raw)
			if err != nil {
				return err
			}
			formatter.PrintSuccess("交易已广播: " + b.TxHash().Hex())
			if txNoWait {
				return formatter.Print(watchResult{TxHash: b.TxHash()})
			}
			return watchTx(ctx, cmd, b)
		})
	},
}

func init() {
	addWatchFlags(watchCmd)
	addWatchFlags(sendCmd)
	sendCmd.Flags().BoolVar(&txNoWait, "no-wait", false, "广播后立即返回")
}
