package heartbeat

import (
	"context"
	"sync"

	"github.com/weisyn/provider/client/core/transport"
)

// Handle 引擎句柄，可在多个 goroutine 间共享
type Handle struct {
	register chan<- *watcher
	cancels  chan<- *watcher
	closing  chan struct{}
	done     <-chan struct{}
	latest   *LatestBlock

	closeOnce sync.Once
}

// Watch 注册待确认交易
//
// 注册通道已满时阻塞，直到引擎取走、ctx 结束或引擎停止。
func (h *Handle) Watch(ctx context.Context, cfg PendingTransactionConfig) (*PendingTransaction, error) {
	select {
	case <-h.closing:
		return nil, transport.ErrBackendGone
	case <-h.done:
		return nil, transport.ErrBackendGone
	default:
	}

	w := newWatcher(cfg)
	select {
	case h.register <- w:
	case <-h.closing:
		return nil, transport.ErrBackendGone
	case <-h.done:
		return nil, transport.ErrBackendGone
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return newPendingTransaction(cfg.TxHash, w.result, h.done, func() {
		once.Do(func() {
			select {
			case h.cancels <- w:
			case <-h.done:
			case <-h.closing:
			}
		})
	}), nil
}

// LatestBlock 最近处理的区块
func (h *Handle) LatestBlock() *LatestBlock { return h.latest }

// Done 引擎停止后关闭
func (h *Handle) Done() <-chan struct{} { return h.done }

// Close 停止引擎，未完成的监听得到 ErrBackendGone
func (h *Handle) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}
