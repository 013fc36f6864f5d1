package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// Frontend 调用方持有的 pubsub 连接句柄，实现 transport.PubSub
//
// 可以被多个协程并发使用。
type Frontend struct {
	instructions chan<- instruction
	done         <-chan struct{}
	stop         context.CancelFunc
	closeOnce    sync.Once
}

var _ transport.PubSub = (*Frontend)(nil)

// Done 服务协程停止时关闭
func (f *Frontend) Done() <-chan struct{} { return f.done }

// Ready 服务协程仍在运行即就绪
func (f *Frontend) Ready(ctx context.Context) error {
	select {
	case <-f.done:
		return transport.ErrBackendGone
	default:
		return ctx.Err()
	}
}

func (f *Frontend) send(ctx context.Context, ins instruction) error {
	select {
	case <-f.done:
		return transport.ErrBackendGone
	default:
	}
	select {
	case f.instructions <- ins:
		return nil
	case <-f.done:
		return transport.ErrBackendGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Frontend) await(ctx context.Context, req jsonrpc.SerializedRequest) (Result, error) {
	inFlight, ch := NewInFlight(req)
	if err := f.send(ctx, requestInstruction{inFlight: inFlight}); err != nil {
		return Result{}, err
	}

	select {
	case r := <-ch:
		return r, r.Err
	case <-f.done:
		// 服务停止前可能已经交付
		select {
		case r := <-ch:
			return r, r.Err
		default:
			return Result{}, transport.ErrBackendGone
		}
	case <-ctx.Done():
		f.cancel(req.ID())
		select {
		case r := <-ch:
			if r.Subscription != nil {
				r.Subscription.Receiver.Close()
			}
		default:
		}
		return Result{}, ctx.Err()
	}
}

// cancel 通知服务协程移除已放弃的请求
func (f *Frontend) cancel(id jsonrpc.ID) {
	ins := cancelInstruction{id: id}
	select {
	case f.instructions <- ins:
	case <-f.done:
	default:
		go func() {
			select {
			case f.instructions <- ins:
			case <-f.done:
			}
		}()
	}
}

// ErrUseSubscribe eth_subscribe 不能走普通调用，需要使用 Subscribe
var ErrUseSubscribe = errors.New("eth_subscribe must be sent with Subscribe")

// Send 发送请求并等待响应；eth_subscribe 返回 ErrUseSubscribe
func (f *Frontend) Send(ctx context.Context, req jsonrpc.SerializedRequest) (jsonrpc.Response, error) {
	if req.IsSubscription() {
		return jsonrpc.Response{}, ErrUseSubscribe
	}
	r, err := f.await(ctx, req)
	if err != nil {
		return jsonrpc.Response{}, err
	}
	return r.Response, nil
}

// Subscribe 发送订阅请求，成功后返回新的监听者
func (f *Frontend) Subscribe(ctx context.Context, req jsonrpc.SerializedRequest) (*transport.Subscription, error) {
	if !req.IsSubscription() {
		return nil, fmt.Errorf("method %s is not %s", req.Method(), jsonrpc.MethodSubscribe)
	}
	r, err := f.await(ctx, req)
	if err != nil {
		return nil, err
	}
	if r.Response.Payload.Error != nil {
		return nil, r.Response.Payload.Error
	}
	if r.Subscription == nil {
		return nil, errors.New("subscription response did not create a subscription")
	}
	return r.Subscription, nil
}

// GetSubscription 为已存在的订阅新增监听者
func (f *Frontend) GetSubscription(ctx context.Context, alias jsonrpc.SubscriptionID) (*transport.Subscription, error) {
	reply := make(chan *transport.Subscription, 1)
	if err := f.send(ctx, getSubInstruction{alias: alias, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case sub := <-reply:
		if sub == nil {
			return nil, fmt.Errorf("%w: %s", errUnknownSubscription, alias.Hex())
		}
		return sub, nil
	case <-f.done:
		return nil, transport.ErrBackendGone
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RemoveSubscription 在本地移除订阅
func (f *Frontend) RemoveSubscription(ctx context.Context, alias jsonrpc.SubscriptionID) error {
	reply := make(chan bool, 1)
	if err := f.send(ctx, removeSubInstruction{alias: alias, reply: reply}); err != nil {
		return err
	}
	select {
	case ok := <-reply:
		if !ok {
			return fmt.Errorf("%w: %s", errUnknownSubscription, alias.Hex())
		}
		return nil
	case <-f.done:
		return transport.ErrBackendGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscriptions 活跃订阅快照
func (f *Frontend) Subscriptions(ctx context.Context) ([]transport.SubscriptionInfo, error) {
	reply := make(chan []transport.SubscriptionInfo, 1)
	if err := f.send(ctx, listSubsInstruction{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case subs := <-reply:
		return subs, nil
	case <-f.done:
		return nil, transport.ErrBackendGone
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 停止服务协程并关闭后端连接
func (f *Frontend) Close() error {
	f.closeOnce.Do(f.stop)
	return nil
}

// IsUnknownSubscription 别名不存在
func IsUnknownSubscription(err error) bool {
	return errors.Is(err, errUnknownSubscription)
}
