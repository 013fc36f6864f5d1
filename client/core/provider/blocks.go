package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
	"github.com/weisyn/provider/client/pkg/types"
)

// cleanupTimeout 退订、卸载过滤器等收尾请求的超时
const cleanupTimeout = 5 * time.Second

// Subscribe 发送 eth_subscribe 并返回新的监听者
func (p *Provider) Subscribe(ctx context.Context, params interface{}) (*transport.Subscription, error) {
	ps, ok := p.client.PubSub()
	if !ok {
		return nil, ErrPubSubUnavailable
	}
	req, err := jsonrpc.NewRequest(p.client.NextID(), jsonrpc.MethodSubscribe, params).Serialize()
	if err != nil {
		return nil, &transport.SerializationError{Err: err}
	}
	return ps.Subscribe(ctx, req)
}

// Unsubscribe 通知节点取消订阅，并在本地关闭该订阅的全部监听者
func (p *Provider) Unsubscribe(ctx context.Context, alias jsonrpc.SubscriptionID) error {
	ps, ok := p.client.PubSub()
	if !ok {
		return ErrPubSubUnavailable
	}
	_, callErr := Call[bool](ctx, p, jsonrpc.MethodUnsubscribe, []string{alias.Hex()})
	if err := ps.RemoveSubscription(ctx, alias); err != nil && callErr == nil {
		return err
	}
	return callErr
}

// SubscribeBlocks 通过 newHeads 订阅获取新区块
//
// 每个区块头都会再按哈希查询一次，以取得交易哈希列表。ctx 结束或连接
// 断开后输出通道被关闭。
func (p *Provider) SubscribeBlocks(ctx context.Context) (<-chan *types.Block, error) {
	return p.subscribeBlocks(ctx, ctx)
}

func (p *Provider) subscribeBlocks(setupCtx, runCtx context.Context) (<-chan *types.Block, error) {
	sub, err := p.Subscribe(setupCtx, []string{"newHeads"})
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(zap.String("source", "newHeads"), zap.String("alias", sub.Alias.Hex()))

	out := make(chan *types.Block)
	go func() {
		defer close(out)
		defer p.unsubscribeQuietly(sub.Alias, logger)
		defer sub.Receiver.Close()

		for {
			raw, err := sub.Receiver.Recv(runCtx)
			if err != nil {
				logger.Debug("区块订阅结束", zap.Error(err))
				return
			}
			var head types.Header
			if err := json.Unmarshal(raw, &head); err != nil {
				logger.Warn("无法解析区块头", zap.Error(err))
				continue
			}
			if !p.forwardBlock(runCtx, out, head.Hash, logger) {
				return
			}
		}
	}()
	return out, nil
}

// WatchBlocks 通过区块过滤器轮询获取新区块
//
// eth_newBlockFilter 创建过滤器后按轮询间隔调用 eth_getFilterChanges，
// 每个新区块哈希再查询一次完整区块。ctx 结束、客户端关闭或轮询失败后
// 输出通道被关闭，过滤器被卸载。
func (p *Provider) WatchBlocks(ctx context.Context) (<-chan *types.Block, error) {
	return p.watchBlocks(ctx, ctx)
}

func (p *Provider) watchBlocks(setupCtx, runCtx context.Context) (<-chan *types.Block, error) {
	filterID, err := Call[string](setupCtx, p, "eth_newBlockFilter", nil)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(zap.String("source", "filter"), zap.String("filter", filterID))
	changes := Poll[[]common.Hash](p, "eth_getFilterChanges", []string{filterID}).Spawn(runCtx)

	out := make(chan *types.Block)
	go func() {
		defer close(out)
		defer p.uninstallFilterQuietly(filterID, logger)
		defer changes.Close()

		for {
			hashes, err := changes.Recv(runCtx)
			if err != nil {
				logger.Debug("区块轮询结束", zap.Error(err))
				return
			}
			for _, hash := range hashes {
				if !p.forwardBlock(runCtx, out, hash, logger) {
					return
				}
			}
		}
	}()
	return out, nil
}

// forwardBlock 查询区块并写入 out；返回 false 表示应停止
func (p *Provider) forwardBlock(ctx context.Context, out chan<- *types.Block, hash common.Hash, logger *zap.Logger) bool {
	b, err := p.GetBlockByHash(ctx, hash, false)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, transport.ErrBackendGone) {
			return false
		}
		logger.Warn("查询区块失败", zap.String("hash", hash.Hex()), zap.Error(err))
		return true
	}
	if b == nil {
		logger.Debug("区块不存在，可能已被重组", zap.String("hash", hash.Hex()))
		return true
	}
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Provider) unsubscribeQuietly(alias jsonrpc.SubscriptionID, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := p.Unsubscribe(ctx, alias); err != nil {
		logger.Debug("退订失败", zap.Error(err))
	}
}

func (p *Provider) uninstallFilterQuietly(filterID string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if _, err := Call[bool](ctx, p, "eth_uninstallFilter", []string{filterID}); err != nil {
		logger.Debug("卸载过滤器失败", zap.Error(err))
	}
}
