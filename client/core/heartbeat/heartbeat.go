// Package heartbeat 跟踪待确认交易
//
// 引擎消费新区块流，按确认深度通知监听者，或在超时后回收。
// 全部状态由引擎 goroutine 独占，外部只通过通道交互。
//
// 调度优先级：注册/取消 > 新区块 > 超时计时器。处理新区块前总会先
// 取完已排队的注册；同一轮中区块先于回收处理，因此截止时间与包含该
// 交易的区块同轮到达时，区块胜出。
//
// 已确认的交易不会因链重组被撤销通知：结果表示"在目前观察到的规范链上
// 已满足"，而非重组安全的最终性。
package heartbeat

import (
	"container/heap"
	"context"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/weisyn/provider/client/pkg/types"
	clockimpl "github.com/weisyn/provider/internal/core/infrastructure/clock"
	infraClock "github.com/weisyn/provider/pkg/interfaces/infrastructure/clock"
)

// DefaultChannelSize 注册通道容量
const DefaultChannelSize = 16

// Options 引擎配置
type Options struct {
	ChannelSize int
	Clock       infraClock.Clock
	Logger      *zap.Logger
}

// Heartbeat 确认引擎
type Heartbeat struct {
	blocks   <-chan *types.Block
	register chan *watcher
	cancels  chan *watcher
	closing  chan struct{}
	done     chan struct{}

	clock  infraClock.Clock
	logger *zap.Logger
	latest *LatestBlock
	handle *Handle

	unconfirmed map[common.Hash]*watcher
	waiting     map[uint64][]*watcher
	thresholds  thresholdQueue
	reapAt      reapQueue
}

// New 创建引擎，Start 之前不会消费任何输入
func New(blocks <-chan *types.Block, opts Options) *Heartbeat {
	size := opts.ChannelSize
	if size <= 0 {
		size = DefaultChannelSize
	}
	clk := opts.Clock
	if clk == nil {
		clk = clockimpl.NewSystemClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Heartbeat{
		blocks:      blocks,
		register:    make(chan *watcher, size),
		cancels:     make(chan *watcher, size),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
		clock:       clk,
		logger:      logger.With(zap.String("module", "heartbeat")),
		latest:      newLatestBlock(),
		unconfirmed: make(map[common.Hash]*watcher),
		waiting:     make(map[uint64][]*watcher),
	}
	h.handle = &Handle{
		register: h.register,
		cancels:  h.cancels,
		closing:  h.closing,
		done:     h.done,
		latest:   h.latest,
	}
	return h
}

// Handle 引擎句柄
func (h *Heartbeat) Handle() *Handle { return h.handle }

// Start 在新 goroutine 中运行引擎
func (h *Heartbeat) Start(ctx context.Context) {
	initHeartbeatMetrics()
	go h.run(ctx)
}

// Spawn 启动引擎并返回句柄
func (h *Heartbeat) Spawn(ctx context.Context) *Handle {
	h.Start(ctx)
	return h.handle
}

func (h *Heartbeat) run(ctx context.Context) {
	defer h.shutdown()
	h.logger.Debug("心跳引擎启动")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			return
		default:
		}

		h.drainInstructions()

		// 有现成区块时直接处理，计时器只在空闲时等待
		if h.blocks != nil {
			select {
			case b, ok := <-h.blocks:
				h.receiveBlock(b, ok)
				continue
			default:
			}
		}

		h.reapTimeouts()

		var timerC <-chan time.Time
		if d, ok := h.nextReap(); ok {
			timer.Reset(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			return
		case w := <-h.register:
			h.handleWatch(w)
		case w := <-h.cancels:
			h.handleCancel(w)
		case b, ok := <-h.blocks:
			h.drainInstructions()
			h.receiveBlock(b, ok)
			timer.Stop()
			continue
		case <-timerC:
		}
		timer.Stop()
		h.reapTimeouts()
	}
}

// receiveBlock 处理一个区块并顺带回收超时项
func (h *Heartbeat) receiveBlock(b *types.Block, ok bool) {
	if !ok {
		h.logger.Warn("区块流已关闭，只处理注册与超时")
		h.blocks = nil
		return
	}
	h.processBlock(b)
}

// processBlock 同一轮内先处理区块，再回收超时项
func (h *Heartbeat) processBlock(b *types.Block) {
	h.handleNewBlock(b)
	h.reapTimeouts()
}

func (h *Heartbeat) drainInstructions() {
	for {
		select {
		case w := <-h.register:
			h.handleWatch(w)
		case w := <-h.cancels:
			h.handleCancel(w)
		default:
			return
		}
	}
}

func (h *Heartbeat) handleWatch(w *watcher) {
	if w.state == stateResolved {
		return
	}
	hash := w.config.TxHash
	if old, ok := h.unconfirmed[hash]; ok {
		h.logger.Debug("重复注册，替换旧的监听", zap.String("tx", hash.Hex()))
		old.drop()
		resolvedCounter.WithLabelValues("replaced").Inc()
		watchedGauge.Dec()
	}

	w.state = stateUnconfirmed
	h.unconfirmed[hash] = w
	watchedGauge.Inc()

	if w.config.Timeout != nil {
		heap.Push(&h.reapAt, reapEntry{deadline: h.clock.Now().Add(*w.config.Timeout), w: w})
	}
	h.logger.Debug("开始监听交易",
		zap.String("tx", hash.Hex()),
		zap.Uint64("confirmations", w.config.Confirmations),
		zap.Bool("has_timeout", w.config.Timeout != nil))
}

func (h *Heartbeat) handleCancel(w *watcher) {
	switch w.state {
	case stateUnconfirmed:
		if h.unconfirmed[w.config.TxHash] == w {
			delete(h.unconfirmed, w.config.TxHash)
		}
	case stateWaiting:
		h.removeWaiting(w)
	case stateRegistered:
		// 取消先于注册到达
		w.drop()
		resolvedCounter.WithLabelValues("cancelled").Inc()
		return
	default:
		return
	}
	w.drop()
	resolvedCounter.WithLabelValues("cancelled").Inc()
	watchedGauge.Dec()
	h.logger.Debug("监听已取消", zap.String("tx", w.config.TxHash.Hex()))
}

func (h *Heartbeat) handleNewBlock(b *types.Block) {
	if b == nil {
		return
	}
	height, ok := b.Height()
	if !ok {
		h.logger.Debug("区块没有高度，忽略", zap.String("hash", b.Hash.Hex()))
		return
	}
	blocksCounter.Inc()

	for _, hash := range b.TxHashes() {
		w, ok := h.unconfirmed[hash]
		if !ok {
			continue
		}
		delete(h.unconfirmed, hash)

		if w.config.Confirmations == 0 {
			h.confirm(w, height)
			continue
		}
		threshold := height + w.config.Confirmations
		if threshold < height {
			threshold = math.MaxUint64
		}
		h.logger.Debug("交易已上链，等待确认",
			zap.String("tx", hash.Hex()),
			zap.Uint64("height", height),
			zap.Uint64("threshold", threshold))
		h.addWaiting(threshold, w)
	}

	h.checkConfirmations(height)

	h.latest.publish(b)
	latestHeightGauge.Set(float64(height))
}

func (h *Heartbeat) addWaiting(threshold uint64, w *watcher) {
	w.state = stateWaiting
	w.threshold = threshold
	bucket, exists := h.waiting[threshold]
	if !exists {
		heap.Push(&h.thresholds, threshold)
	}
	h.waiting[threshold] = append(bucket, w)
}

func (h *Heartbeat) removeWaiting(w *watcher) {
	bucket := h.waiting[w.threshold]
	for i, cur := range bucket {
		if cur == w {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		// 阈值仍留在堆中，弹出时发现桶不存在即跳过
		delete(h.waiting, w.threshold)
		return
	}
	h.waiting[w.threshold] = bucket
}

// checkConfirmations 通知阈值不超过 height 的所有桶
func (h *Heartbeat) checkConfirmations(height uint64) {
	for h.thresholds.Len() > 0 && h.thresholds[0] <= height {
		threshold := heap.Pop(&h.thresholds).(uint64)
		bucket, ok := h.waiting[threshold]
		if !ok {
			continue
		}
		delete(h.waiting, threshold)
		for _, w := range bucket {
			h.confirm(w, height)
		}
	}
}

func (h *Heartbeat) confirm(w *watcher, height uint64) {
	h.logger.Debug("交易已确认",
		zap.String("tx", w.config.TxHash.Hex()),
		zap.Uint64("height", height))
	w.notify()
	resolvedCounter.WithLabelValues("confirmed").Inc()
	watchedGauge.Dec()
}

// nextReap 距最近截止时间的时长
func (h *Heartbeat) nextReap() (time.Duration, bool) {
	next, ok := h.reapAt.peek()
	if !ok {
		return 0, false
	}
	d := h.clock.Until(next.deadline)
	if d < 0 {
		d = 0
	}
	return d, true
}

// reapTimeouts 回收所有已到期且仍未上链的监听
func (h *Heartbeat) reapTimeouts() {
	now := h.clock.Now()
	for {
		next, ok := h.reapAt.peek()
		if !ok || next.deadline.After(now) {
			return
		}
		heap.Pop(&h.reapAt)

		w := next.w
		if w.state != stateUnconfirmed || h.unconfirmed[w.config.TxHash] != w {
			continue
		}
		delete(h.unconfirmed, w.config.TxHash)
		w.drop()
		resolvedCounter.WithLabelValues("reaped").Inc()
		watchedGauge.Dec()
		h.logger.Debug("监听超时，已回收", zap.String("tx", w.config.TxHash.Hex()))
	}
}

// shutdown 丢弃所有未完成的监听，调用方得到 ErrBackendGone
func (h *Heartbeat) shutdown() {
	dropped := 0
drain:
	for {
		select {
		case w := <-h.register:
			w.drop()
			dropped++
		default:
			break drain
		}
	}
	for hash, w := range h.unconfirmed {
		w.drop()
		delete(h.unconfirmed, hash)
		dropped++
		watchedGauge.Dec()
	}
	for threshold, bucket := range h.waiting {
		for _, w := range bucket {
			w.drop()
			dropped++
			watchedGauge.Dec()
		}
		delete(h.waiting, threshold)
	}
	h.thresholds = nil
	h.reapAt = nil
	if dropped > 0 {
		resolvedCounter.WithLabelValues("shutdown").Add(float64(dropped))
	}
	close(h.done)
	h.logger.Debug("心跳引擎停止", zap.Int("dropped", dropped))
}
