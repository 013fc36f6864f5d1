// Package pubsub 在单条双工连接上实现请求/响应关联与订阅推送分发
//
// 连接状态（在途请求表、活跃订阅表）只由服务协程持有；前端通过指令通道
// 与服务协程通信。后端负责报文收发，可以是 WebSocket 连接，也可以是进程内连接。
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// Connector 建立新的后端连接，用于断线重连
type Connector func(ctx context.Context) (*ConnectionHandle, error)

// Options 服务配置
type Options struct {
	SubscriptionBuffer int
	InstructionBuffer  int

	// Connector 为空时连接断开即停止服务
	Connector         Connector
	ReconnectAttempts int
	ReconnectBackoff  time.Duration

	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.SubscriptionBuffer <= 0 {
		o.SubscriptionBuffer = DefaultSubscriptionBuffer
	}
	if o.InstructionBuffer <= 0 {
		o.InstructionBuffer = DefaultConnectionBuffer
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 3
	}
	if o.ReconnectBackoff <= 0 {
		o.ReconnectBackoff = time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type instruction interface{}

type requestInstruction struct{ inFlight *InFlight }

type cancelInstruction struct{ id jsonrpc.ID }

type getSubInstruction struct {
	alias jsonrpc.SubscriptionID
	reply chan *transport.Subscription
}

type removeSubInstruction struct {
	alias jsonrpc.SubscriptionID
	reply chan bool
}

type listSubsInstruction struct {
	reply chan []transport.SubscriptionInfo
}

type service struct {
	handle       *ConnectionHandle
	opts         Options
	instructions chan instruction
	reqs         *RequestManager
	subs         *SubscriptionManager
	logger       *zap.Logger
	done         chan struct{}
}

// Spawn 启动服务协程并返回前端
//
// 服务在前端 Close 或连接断开且无法重连时停止，此后所有调用返回 ErrBackendGone。
func Spawn(handle *ConnectionHandle, opts Options) *Frontend {
	initPubSubMetrics()
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &service{
		handle:       handle,
		opts:         opts,
		instructions: make(chan instruction, opts.InstructionBuffer),
		reqs:         NewRequestManager(),
		subs:         NewSubscriptionManager(opts.SubscriptionBuffer),
		logger:       opts.Logger.With(zap.String("module", "pubsub"), zap.String("service_id", uuid.NewString())),
		done:         make(chan struct{}),
	}
	go s.run(ctx)

	return &Frontend{
		instructions: s.instructions,
		done:         s.done,
		stop:         cancel,
	}
}

func (s *service) run(ctx context.Context) {
	defer s.shutdown()
	s.logger.Debug("pubsub 服务启动")

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.handle.Done():
			s.drainIncoming()
			if err := s.reconnect(ctx); err != nil {
				s.logger.Warn("pubsub 后端已停止", zap.Error(err))
				return
			}

		case raw := <-s.handle.Incoming():
			s.handleItem(raw)

		case ins := <-s.instructions:
			s.handleInstruction(ctx, ins)
		}
	}
}

// drainIncoming 处理连接断开前已收到的报文
func (s *service) drainIncoming() {
	for {
		select {
		case raw := <-s.handle.Incoming():
			s.handleItem(raw)
		default:
			return
		}
	}
}

func (s *service) handleItem(raw []byte) {
	item, err := jsonrpc.DecodePubSubItem(raw)
	if err != nil {
		s.logger.Warn("无法解析的报文", zap.Error(err), zap.ByteString("text", truncate(raw, 256)))
		return
	}
	if item.Response != nil {
		s.handleResponse(*item.Response)
		return
	}
	s.handleNotification(*item.Notification)
}

func (s *service) handleResponse(resp jsonrpc.Response) {
	before := s.reqs.Len()
	alias, f, ok := s.reqs.HandleResponse(resp)
	pubsubInFlightGauge.Add(float64(s.reqs.Len() - before))

	if s.reqs.Len() == before {
		s.logger.Debug("未知请求标识的响应，丢弃", zap.Stringer("id", resp.ID))
		return
	}
	if !ok {
		return
	}

	if f.resubscribe {
		local := localIDOf(f.Request())
		if !s.subs.Rebind(local, alias) {
			s.logger.Debug("重新订阅返回时订阅已被移除", zap.String("alias", alias.Hex()))
		}
		return
	}

	before = s.subs.Len()
	sub, rx := s.subs.Upsert(f.Request(), alias)
	pubsubActiveSubsGauge.Add(float64(s.subs.Len() - before))
	f.Deliver(Result{
		Response: resp,
		Subscription: &transport.Subscription{
			Alias:    alias,
			LocalID:  sub.LocalID,
			Receiver: rx,
		},
	})
	s.logger.Debug("订阅已建立", zap.String("alias", alias.Hex()), zap.Stringer("local_id", sub.LocalID))
}

func (s *service) handleNotification(n jsonrpc.Notification) {
	found, delivered := s.subs.Notify(n)
	switch {
	case !found:
		pubsubNotificationsCounter.WithLabelValues("unknown").Inc()
		s.logger.Debug("未知订阅的推送，丢弃", zap.String("alias", n.Subscription.Hex()))
	case !delivered:
		pubsubNotificationsCounter.WithLabelValues("no_listener").Inc()
	default:
		pubsubNotificationsCounter.WithLabelValues("delivered").Inc()
	}
}

func (s *service) handleInstruction(ctx context.Context, ins instruction) {
	switch in := ins.(type) {
	case requestInstruction:
		s.dispatch(ctx, in.inFlight)

	case cancelInstruction:
		if s.reqs.Remove(in.id) != nil {
			pubsubInFlightGauge.Dec()
		}

	case getSubInstruction:
		sub, ok := s.subs.Get(in.alias)
		if !ok {
			in.reply <- nil
			return
		}
		in.reply <- &transport.Subscription{Alias: in.alias, LocalID: sub.LocalID, Receiver: sub.Subscribe()}

	case removeSubInstruction:
		before := s.subs.Len()
		in.reply <- s.subs.Remove(in.alias)
		pubsubActiveSubsGauge.Add(float64(s.subs.Len() - before))

	case listSubsInstruction:
		in.reply <- s.subs.Subscriptions()
	}
}

// dispatch 登记在途请求并写出
//
// 写出失败时请求保留在表中，重连后重新发出。
func (s *service) dispatch(ctx context.Context, f *InFlight) {
	before := s.reqs.Len()
	s.reqs.Insert(f)
	pubsubInFlightGauge.Add(float64(s.reqs.Len() - before))

	if err := s.handle.Send(ctx, f.Request().Bytes()); err != nil {
		s.logger.Debug("写出请求失败", zap.Stringer("id", f.ID()), zap.Error(err))
	}
}

// maxReconnectBackoff 重连等待上限
const maxReconnectBackoff = 30 * time.Second

// reconnectPolicy 指数退避，总尝试次数为 ReconnectAttempts
func reconnectPolicy(ctx context.Context, opts Options) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.ReconnectBackoff
	b.MaxInterval = maxReconnectBackoff
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()

	retries := 0
	if opts.ReconnectAttempts > 1 {
		retries = opts.ReconnectAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (s *service) reconnect(ctx context.Context) error {
	cause := s.handle.Err()
	if cause == nil {
		cause = transport.ErrBackendGone
	}
	if s.opts.Connector == nil {
		return cause
	}

	s.logger.Warn("连接断开，尝试重连", zap.Error(cause))
	var (
		handle  *ConnectionHandle
		attempt int
	)
	err := backoff.RetryNotify(func() error {
		attempt++
		h, err := s.opts.Connector(ctx)
		if err != nil {
			return err
		}
		handle = h
		return nil
	}, reconnectPolicy(ctx, s.opts), func(err error, d time.Duration) {
		s.logger.Warn("重连失败",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", d),
			zap.Error(err))
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("reconnect after %d attempts: %w", attempt, err)
	}

	s.handle = handle
	pubsubReconnectsCounter.Inc()

	s.reqs.Range(func(f *InFlight) {
		if err := s.handle.Send(ctx, f.Request().Bytes()); err != nil {
			s.logger.Debug("重发请求失败", zap.Stringer("id", f.ID()), zap.Error(err))
		}
	})

	for _, info := range s.subs.Subscriptions() {
		f, _ := NewInFlight(info.Request)
		f.resubscribe = true
		s.dispatch(ctx, f)
	}

	s.logger.Info("重连成功",
		zap.Int("in_flight", s.reqs.Len()),
		zap.Int("subscriptions", s.subs.Len()))
	return nil
}

func (s *service) shutdown() {
	pubsubInFlightGauge.Sub(float64(s.reqs.Len()))
	pubsubActiveSubsGauge.Sub(float64(s.subs.Len()))

	s.reqs.DropAll(transport.ErrBackendGone)
	s.subs.CloseAll()
	s.handle.Shutdown()
	close(s.done)

	// 释放仍在指令通道中的请求
	for {
		select {
		case ins := <-s.instructions:
			if req, ok := ins.(requestInstruction); ok {
				req.inFlight.Deliver(Result{Err: transport.ErrBackendGone})
			}
		default:
			s.logger.Debug("pubsub 服务停止")
			return
		}
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

var errUnknownSubscription = errors.New("unknown subscription")
