package pubsub

import (
	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// Result 在途请求的最终结果
type Result struct {
	Response     jsonrpc.Response
	Subscription *transport.Subscription
	Err          error
}

// InFlight 已发出、尚未收到响应的请求
//
// 结果通道容量为 1 且只写一次，调用方放弃等待时写入不会阻塞。
type InFlight struct {
	request jsonrpc.SerializedRequest
	result  chan Result

	// 重连后重新发出的订阅请求，成功时只更新别名，不创建监听者
	resubscribe bool
}

// NewInFlight 创建在途请求，返回调用方等待结果的通道
func NewInFlight(req jsonrpc.SerializedRequest) (*InFlight, <-chan Result) {
	ch := make(chan Result, 1)
	return &InFlight{request: req, result: ch}, ch
}

// Request 原始请求
func (f *InFlight) Request() jsonrpc.SerializedRequest { return f.request }

// ID 请求标识
func (f *InFlight) ID() jsonrpc.ID { return f.request.ID() }

// Method 方法名
func (f *InFlight) Method() string { return f.request.Method() }

// IsSubscription 是否为订阅请求
func (f *InFlight) IsSubscription() bool { return f.request.IsSubscription() }

// Fulfill 用响应完成请求
//
// 订阅请求成功时不立即交付，而是返回订阅别名，由调用方先建立活跃订阅再交付。
// 订阅别名无法解析时，调用方收到解码错误。
func (f *InFlight) Fulfill(resp jsonrpc.Response) (jsonrpc.SubscriptionID, bool) {
	if f.IsSubscription() && resp.Payload.IsSuccess() {
		alias, err := jsonrpc.ParseSubscriptionID(resp.Payload.Result)
		if err != nil {
			f.Deliver(Result{Err: &transport.DeserializationError{Err: err, Text: string(resp.Payload.Result)}})
			return jsonrpc.SubscriptionID{}, false
		}
		return alias, true
	}
	f.Deliver(Result{Response: resp})
	return jsonrpc.SubscriptionID{}, false
}

// Deliver 交付结果；调用方已放弃时静默丢弃
func (f *InFlight) Deliver(r Result) {
	select {
	case f.result <- r:
	default:
	}
}
