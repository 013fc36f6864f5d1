package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/broadcast"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

const (
	// DefaultPollChannelSize 每个监听者缓存的结果数量
	DefaultPollChannelSize = 16
	// DefaultPollMaxRetries 可恢复传输错误的立即重试次数（整个任务共享）
	DefaultPollMaxRetries = 3
)

// PollerBuilder 轮询任务配置
type PollerBuilder[Resp any] struct {
	client       *Client
	method       string
	params       interface{}
	channelSize  int
	pollInterval time.Duration
	limit        int
	maxRetries   int
}

// NewPoller 创建轮询任务配置
//
// 默认：通道大小 16，间隔取客户端默认轮询间隔，次数不限。
func NewPoller[Resp any](client *Client, method string, params interface{}) *PollerBuilder[Resp] {
	interval := DefaultPollInterval
	if client != nil {
		interval = client.PollInterval()
	}
	return &PollerBuilder[Resp]{
		client:       client,
		method:       method,
		params:       params,
		channelSize:  DefaultPollChannelSize,
		pollInterval: interval,
		maxRetries:   DefaultPollMaxRetries,
	}
}

// Method 轮询的方法名
func (b *PollerBuilder[Resp]) Method() string { return b.method }

// ChannelSize 通道大小
func (b *PollerBuilder[Resp]) ChannelSize() int { return b.channelSize }

// WithChannelSize 设置通道大小
func (b *PollerBuilder[Resp]) WithChannelSize(n int) *PollerBuilder[Resp] {
	if n > 0 {
		b.channelSize = n
	}
	return b
}

// Limit 最大成功轮询次数，0 表示不限
func (b *PollerBuilder[Resp]) Limit() int { return b.limit }

// WithLimit 设置最大成功轮询次数
func (b *PollerBuilder[Resp]) WithLimit(n int) *PollerBuilder[Resp] {
	if n < 0 {
		n = 0
	}
	b.limit = n
	return b
}

// PollInterval 轮询间隔
func (b *PollerBuilder[Resp]) PollInterval() time.Duration { return b.pollInterval }

// WithPollInterval 设置轮询间隔
func (b *PollerBuilder[Resp]) WithPollInterval(d time.Duration) *PollerBuilder[Resp] {
	if d > 0 {
		b.pollInterval = d
	}
	return b
}

// WithMaxRetries 设置可恢复错误的重试预算
func (b *PollerBuilder[Resp]) WithMaxRetries(n int) *PollerBuilder[Resp] {
	if n >= 0 {
		b.maxRetries = n
	}
	return b
}

// Spawn 启动轮询任务
//
// 任务在以下情况停止并关闭通道：ctx 取消、客户端关闭、达到次数上限、
// 所有监听者都已关闭、不可恢复的传输错误或重试预算耗尽。
func (b *PollerBuilder[Resp]) Spawn(ctx context.Context) *PollChannel[Resp] {
	initPollerMetrics()
	tx := broadcast.New[Resp](b.channelSize)
	rx := tx.Subscribe()
	go b.run(ctx, tx)
	return &PollChannel[Resp]{rx: rx}
}

func (b *PollerBuilder[Resp]) run(ctx context.Context, tx *broadcast.Sender[Resp]) {
	pollerActiveGauge.Inc()
	defer pollerActiveGauge.Dec()
	defer tx.Close()

	if b.client == nil {
		return
	}
	logger := b.client.Logger().With(
		zap.String("module", "poller"),
		zap.String("poller_id", uuid.NewString()),
		zap.String("method", b.method))

	// 参数只序列化一次
	var params json.RawMessage
	if b.params != nil {
		raw, err := json.Marshal(b.params)
		if err != nil {
			logger.Error("轮询参数序列化失败", zap.Error(err))
			return
		}
		params = raw
	}

	retries := b.maxRetries
	polls := 0
	logger.Debug("轮询任务启动", zap.Duration("interval", b.pollInterval), zap.Int("limit", b.limit))

	for b.limit == 0 || polls < b.limit {
		select {
		case <-ctx.Done():
			return
		case <-b.client.Done():
			logger.Debug("客户端已关闭，轮询停止")
			return
		default:
		}

		var callParams interface{}
		if params != nil {
			callParams = params
		}
		resp, err := NewCall[Resp](b.client, b.method, callParams).Await(ctx)

		switch {
		case err == nil:
			pollerResultsCounter.WithLabelValues("ok").Inc()
			if _, sendErr := tx.Send(resp); sendErr != nil {
				logger.Debug("没有监听者，轮询停止")
				return
			}
			polls++

		case ctx.Err() != nil:
			return

		case transport.IsRecoverable(err) && retries > 0:
			retries--
			pollerResultsCounter.WithLabelValues("retry").Inc()
			logger.Debug("可恢复错误，立即重试", zap.Error(err), zap.Int("retries_left", retries))
			continue

		case transport.IsProtocolError(err) || transport.IsDeserializationError(err):
			var ep *jsonrpc.ErrorPayload
			if errors.As(err, &ep) && ep.IsRateLimited() {
				pollerResultsCounter.WithLabelValues("rate_limited").Inc()
			} else {
				pollerResultsCounter.WithLabelValues("error").Inc()
			}
			logger.Warn("轮询结果错误，等待下一轮", zap.Error(err))

		default:
			pollerResultsCounter.WithLabelValues("fatal").Inc()
			logger.Error("轮询失败，任务停止", zap.Error(err))
			return
		}

		if b.limit != 0 && polls >= b.limit {
			break
		}

		timer := time.NewTimer(b.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		case <-b.client.Done():
			timer.Stop()
			return
		}
	}
	logger.Debug("轮询任务结束", zap.Int("polls", polls))
}

// PollChannel 轮询结果的监听者
type PollChannel[Resp any] struct {
	rx *broadcast.Receiver[Resp]
}

// Recv 等待下一个结果；任务结束且结果读完后返回 broadcast.ErrClosed
func (p *PollChannel[Resp]) Recv(ctx context.Context) (Resp, error) {
	return p.rx.Recv(ctx)
}

// TryRecv 非阻塞读取
func (p *PollChannel[Resp]) TryRecv() (Resp, bool) {
	return p.rx.TryRecv()
}

// Chan 转为普通通道
func (p *PollChannel[Resp]) Chan(ctx context.Context) <-chan Resp {
	return p.rx.Chan(ctx)
}

// Resubscribe 为同一任务新增监听者
func (p *PollChannel[Resp]) Resubscribe() *PollChannel[Resp] {
	return &PollChannel[Resp]{rx: p.rx.Resubscribe()}
}

// Lagged 因读取过慢被丢弃的结果数
func (p *PollChannel[Resp]) Lagged() uint64 {
	return p.rx.Lagged()
}

// Close 关闭监听者；最后一个监听者关闭后任务在下一次发布时停止
func (p *PollChannel[Resp]) Close() {
	p.rx.Close()
}
