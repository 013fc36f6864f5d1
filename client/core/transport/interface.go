// Package transport 定义客户端与节点之间的传输能力接口
//
// Transport 只提供请求/响应能力；支持推送的连接（WebSocket、进程内连接）
// 额外实现 PubSub。调用方通过类型断言探测能力，而不是依赖具体实现。
package transport

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/provider/client/pkg/broadcast"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// Transport 请求/响应传输
type Transport interface {
	// Ready 等待传输可以接受新请求；连接已关闭时返回 ErrBackendGone
	Ready(ctx context.Context) error

	// Send 发送已序列化的请求并等待对应响应
	//
	// 服务端返回的错误对象放在 Response.Payload.Error 中，不作为 error 返回。
	Send(ctx context.Context, req jsonrpc.SerializedRequest) (jsonrpc.Response, error)

	// Close 关闭传输
	Close() error
}

// Subscription 活跃订阅上的一个监听者
type Subscription struct {
	Alias    jsonrpc.SubscriptionID
	LocalID  common.Hash
	Receiver *broadcast.Receiver[json.RawMessage]
}

// SubscriptionInfo 活跃订阅的快照
type SubscriptionInfo struct {
	Alias     jsonrpc.SubscriptionID
	LocalID   common.Hash
	Request   jsonrpc.SerializedRequest
	Listeners int
}

// PubSub 支持服务端推送的传输
type PubSub interface {
	Transport

	// Subscribe 发送 eth_subscribe 请求，成功后返回该订阅的新监听者
	Subscribe(ctx context.Context, req jsonrpc.SerializedRequest) (*Subscription, error)

	// RemoveSubscription 在本地移除订阅并关闭其所有监听者
	RemoveSubscription(ctx context.Context, alias jsonrpc.SubscriptionID) error

	// Subscriptions 按 LocalID 排序的活跃订阅快照
	Subscriptions(ctx context.Context) ([]SubscriptionInfo, error)
}
