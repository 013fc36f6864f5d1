package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/weisyn/provider/client/pkg/types"
)

// LatestBlock 最近处理的区块
//
// 只保留最新值，不保存历史。读取与确认跟踪互不影响。
type LatestBlock struct {
	block atomic.Pointer[types.Block]

	mu      sync.Mutex
	changed chan struct{}
}

func newLatestBlock() *LatestBlock {
	return &LatestBlock{changed: make(chan struct{})}
}

// Load 当前最新区块，尚无区块时为 nil
func (l *LatestBlock) Load() *types.Block {
	return l.block.Load()
}

// Changed 下一次发布时关闭的通道
func (l *LatestBlock) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// Next 等待比 seen 更新的区块
//
// seen 为 nil 时直接返回当前值（若有）。
func (l *LatestBlock) Next(ctx context.Context, seen *types.Block) (*types.Block, error) {
	for {
		changed := l.Changed()
		if cur := l.Load(); cur != nil && cur != seen {
			return cur, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *LatestBlock) publish(b *types.Block) {
	l.block.Store(b)
	l.mu.Lock()
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
}
