package provider

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/heartbeat"
	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/types"
)

// Heartbeat 返回确认引擎句柄，首次调用时启动
//
// 支持推送的传输使用 newHeads 订阅作为区块来源，否则使用区块过滤器
// 轮询。引擎停止后下次调用会重新启动；启动失败时不缓存，可重试。
// 并发调用共享同一次启动，各自只等待到自己的 ctx 结束。
func (p *Provider) Heartbeat(ctx context.Context) (*heartbeat.Handle, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, transport.ErrBackendGone
		}
		if p.hb != nil {
			select {
			case <-p.hb.Done():
				p.hbCancel()
				p.hb, p.hbCancel = nil, nil
			default:
				hb := p.hb
				p.mu.Unlock()
				return hb, nil
			}
		}
		if starting := p.hbStarting; starting != nil {
			p.mu.Unlock()
			select {
			case <-starting:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		starting := make(chan struct{})
		p.hbStarting = starting
		p.mu.Unlock()

		hb, cancel, err := p.startHeartbeat(ctx)

		p.mu.Lock()
		p.hbStarting = nil
		close(starting)
		if err == nil && p.closed {
			hb.Close()
			cancel()
			hb, err = nil, transport.ErrBackendGone
		} else if err == nil {
			p.hb, p.hbCancel = hb, cancel
		}
		p.mu.Unlock()
		return hb, err
	}
}

// startHeartbeat 建立区块来源并启动引擎，不持有 p.mu
func (p *Provider) startHeartbeat(ctx context.Context) (*heartbeat.Handle, context.CancelFunc, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	var (
		blocks <-chan *types.Block
		err    error
	)
	usePubSub := p.SupportsPubSub()
	if usePubSub {
		blocks, err = p.subscribeBlocks(ctx, runCtx)
	} else {
		blocks, err = p.watchBlocks(ctx, runCtx)
	}
	if err != nil {
		cancel()
		return nil, nil, err
	}

	hb := heartbeat.New(blocks, heartbeat.Options{
		ChannelSize: p.opts.HeartbeatChannelSize,
		Clock:       p.opts.Clock,
		Logger:      p.opts.Logger,
	}).Spawn(runCtx)
	p.logger.Debug("确认引擎已启动", zap.Bool("pubsub", usePubSub))
	return hb, cancel, nil
}

// LatestBlock 确认引擎最近处理的区块
func (p *Provider) LatestBlock(ctx context.Context) (*heartbeat.LatestBlock, error) {
	hb, err := p.Heartbeat(ctx)
	if err != nil {
		return nil, err
	}
	return hb.LatestBlock(), nil
}

// WatchPendingTransaction 向确认引擎注册待确认交易
func (p *Provider) WatchPendingTransaction(ctx context.Context, cfg heartbeat.PendingTransactionConfig) (*heartbeat.PendingTransaction, error) {
	hb, err := p.Heartbeat(ctx)
	if err != nil {
		return nil, err
	}
	return hb.Watch(ctx, cfg)
}

// PendingTransaction 为已广播的交易创建监听配置
func (p *Provider) PendingTransaction(hash common.Hash) *PendingTransactionBuilder {
	cfg := heartbeat.NewPendingTransactionConfig(hash).
		WithConfirmations(p.opts.DefaultConfirmations).
		WithTimeout(p.opts.DefaultTimeout)
	return &PendingTransactionBuilder{provider: p, config: cfg}
}

// SendRawTransaction 广播已签名交易，返回可继续监听的配置
func (p *Provider) SendRawTransaction(ctx context.Context, raw []byte) (*PendingTransactionBuilder, error) {
	hash, err := Call[common.Hash](ctx, p, "eth_sendRawTransaction", []interface{}{hexutil.Bytes(raw)})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("交易已广播", zap.String("tx", hash.Hex()))
	return p.PendingTransaction(hash), nil
}

// PendingTransactionBuilder 待确认交易的监听配置
type PendingTransactionBuilder struct {
	provider *Provider
	config   heartbeat.PendingTransactionConfig
}

// TxHash 交易哈希
func (b *PendingTransactionBuilder) TxHash() common.Hash { return b.config.TxHash }

// Config 当前配置
func (b *PendingTransactionBuilder) Config() heartbeat.PendingTransactionConfig { return b.config }

// WithConfirmations 设置确认深度，0 表示上链即确认
func (b *PendingTransactionBuilder) WithConfirmations(n uint64) *PendingTransactionBuilder {
	b.config = b.config.WithConfirmations(n)
	return b
}

// WithTimeout 设置上链超时，d <= 0 表示不超时
func (b *PendingTransactionBuilder) WithTimeout(d time.Duration) *PendingTransactionBuilder {
	b.config = b.config.WithTimeout(d)
	return b
}

// Register 注册到确认引擎
func (b *PendingTransactionBuilder) Register(ctx context.Context) (*heartbeat.PendingTransaction, error) {
	return b.provider.WatchPendingTransaction(ctx, b.config)
}

// Watch 注册并等待确认；ctx 结束时取消监听
func (b *PendingTransactionBuilder) Watch(ctx context.Context) (common.Hash, error) {
	pending, err := b.Register(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := pending.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		pending.Cancel()
	}
	return hash, err
}

// GetReceipt 等待确认后查询回执
func (b *PendingTransactionBuilder) GetReceipt(ctx context.Context) (*types.Receipt, error) {
	hash, err := b.Watch(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := b.provider.GetTransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrReceiptNotFound
	}
	return receipt, nil
}
