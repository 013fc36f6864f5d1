package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/weisyn/provider/client/core/provider"
	"github.com/weisyn/provider/client/pkg/types"
)

var headCount int // 输出的区块数量，0 表示不限

// blockSummary 区块摘要
type blockSummary struct {
	Height       uint64      `json:"height"`
	Hash         common.Hash `json:"hash"`
	ParentHash   common.Hash `json:"parentHash"`
	Timestamp    uint64      `json:"timestamp"`
	Transactions int         `json:"transactions"`
}

func summarize(b *types.Block) blockSummary {
	height, _ := b.Height()
	return blockSummary{
		Height:       height,
		Hash:         b.Hash,
		ParentHash:   b.ParentHash,
		Timestamp:    uint64(b.Timestamp),
		Transactions: b.Transactions.Len(),
	}
}

func (s blockSummary) String() string {
	return fmt.Sprintf("#%d %s txs=%d", s.Height, s.Hash.Hex(), s.Transactions)
}

// headCmd 跟随新区块
var headCmd = &cobra.Command{
	Use:   "head",
	Short: "跟随新区块",
	Long:  "启动确认引擎并输出其处理的每个新区块；ws 端点使用 newHeads 订阅，http 端点使用区块过滤器轮询",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(cmd, func(ctx context.Context, p *provider.Provider) error {
			latest, err := p.LatestBlock(ctx)
			if err != nil {
				return err
			}
			formatter.PrintInfo("等待新区块...")

			var seen *types.Block
			for i := 0; headCount == 0 || i < headCount; i++ {
				b, err := latest.Next(ctx, seen)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				seen = b
				if err := formatter.Print(summarize(b)); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func init() {
	headCmd.Flags().IntVarP(&headCount, "count", "n", 0, "输出的区块数量 (0 表示不限)")
}
