package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/weisyn/provider/client/pkg/types"
)

// BlockNumber 最新区块高度
func (p *Provider) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := Call[hexutil.Uint64](ctx, p, "eth_blockNumber", nil)
	return uint64(n), err
}

// ChainID 链标识
func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := Call[hexutil.Big](ctx, p, "eth_chainId", nil)
	if err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

// GetBlockByHash 按哈希查询区块，不存在时返回 nil
func (p *Provider) GetBlockByHash(ctx context.Context, hash common.Hash, full bool) (*types.Block, error) {
	return Call[*types.Block](ctx, p, "eth_getBlockByHash", []interface{}{hash, full})
}

// GetBlockByNumber 按高度或标签查询区块，不存在时返回 nil
func (p *Provider) GetBlockByNumber(ctx context.Context, tag types.BlockTag, full bool) (*types.Block, error) {
	return Call[*types.Block](ctx, p, "eth_getBlockByNumber", []interface{}{tag, full})
}

// GetTransactionReceipt 查询交易回执，交易未上链时返回 nil
func (p *Provider) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return Call[*types.Receipt](ctx, p, "eth_getTransactionReceipt", []interface{}{hash})
}
