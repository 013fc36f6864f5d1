package heartbeat

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/provider/client/core/transport"
)

type watcherState int

const (
	stateRegistered watcherState = iota
	stateUnconfirmed
	stateWaiting
	stateResolved
)

// watcher 引擎内部的监听项，只由引擎 goroutine 修改
type watcher struct {
	config    PendingTransactionConfig
	state     watcherState
	threshold uint64
	result    chan error
}

func newWatcher(cfg PendingTransactionConfig) *watcher {
	return &watcher{config: cfg, result: make(chan error, 1)}
}

// resolve 投递结果；调用方已放弃时只是清理
func (w *watcher) resolve(err error) {
	w.state = stateResolved
	select {
	case w.result <- err:
	default:
	}
}

func (w *watcher) notify() { w.resolve(nil) }

func (w *watcher) drop() { w.resolve(transport.ErrBackendGone) }

// PendingTransaction 已注册的待确认交易
type PendingTransaction struct {
	txHash common.Hash
	result <-chan error
	cancel func()

	settleOnce sync.Once
	settled    chan struct{}
	err        error
}

func newPendingTransaction(txHash common.Hash, result <-chan error, engineDone <-chan struct{}, cancel func()) *PendingTransaction {
	p := &PendingTransaction{
		txHash:  txHash,
		result:  result,
		cancel:  cancel,
		settled: make(chan struct{}),
	}
	go p.collect(engineDone)
	return p
}

// collect 取走引擎投递的结果；引擎停止且没有结果时按 ErrBackendGone 处理
func (p *PendingTransaction) collect(engineDone <-chan struct{}) {
	select {
	case err := <-p.result:
		p.settle(err)
	case <-engineDone:
		select {
		case err := <-p.result:
			p.settle(err)
		default:
			p.settle(transport.ErrBackendGone)
		}
	}
}

// TxHash 交易哈希
func (p *PendingTransaction) TxHash() common.Hash { return p.txHash }

// Wait 等待确认
//
// 达到确认深度时返回交易哈希；超时被回收、被取消或引擎停止时返回
// transport.ErrBackendGone。结果会被缓存，可在多个 goroutine 中重复调用，
// 每个调用只受自己的 ctx 约束。
func (p *PendingTransaction) Wait(ctx context.Context) (common.Hash, error) {
	select {
	case <-p.settled:
		return p.outcome()
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
}

// Cancel 放弃监听，引擎在下一轮移除该项
func (p *PendingTransaction) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *PendingTransaction) settle(err error) {
	p.settleOnce.Do(func() {
		p.err = err
		close(p.settled)
	})
}

func (p *PendingTransaction) outcome() (common.Hash, error) {
	if p.err != nil {
		return common.Hash{}, p.err
	}
	return p.txHash, nil
}
