// Package rpc 提供 JSON-RPC 客户端、单次调用状态机和轮询任务
package rpc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

const (
	// DefaultPollInterval 远端节点的默认轮询间隔
	DefaultPollInterval = 7 * time.Second
	// LocalPollInterval 本机节点的默认轮询间隔
	LocalPollInterval = 250 * time.Millisecond
)

// ClientOptions 客户端配置
type ClientOptions struct {
	// IsLocal 节点在本机，默认轮询间隔缩短为 LocalPollInterval
	IsLocal bool
	// PollInterval 非零时覆盖默认轮询间隔
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Client JSON-RPC 客户端
//
// 负责分配请求标识并持有传输。Close 后，由它派生的轮询任务全部停止。
type Client struct {
	transport    transport.Transport
	nextID       atomic.Uint64
	pollInterval atomic.Int64
	logger       *zap.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient 创建客户端
func NewClient(t transport.Transport, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
		if opts.IsLocal {
			interval = LocalPollInterval
		}
	}

	c := &Client{
		transport: t,
		logger:    logger.With(zap.String("module", "rpc")),
		closed:    make(chan struct{}),
	}
	c.pollInterval.Store(int64(interval))
	return c
}

// NextID 分配下一个请求标识
func (c *Client) NextID() jsonrpc.ID {
	return jsonrpc.NumberID(c.nextID.Add(1))
}

// Transport 底层传输
func (c *Client) Transport() transport.Transport { return c.transport }

// PubSub 底层传输支持推送时返回 PubSub 能力
func (c *Client) PubSub() (transport.PubSub, bool) {
	ps, ok := c.transport.(transport.PubSub)
	return ps, ok
}

// PollInterval 默认轮询间隔
func (c *Client) PollInterval() time.Duration {
	return time.Duration(c.pollInterval.Load())
}

// SetPollInterval 修改默认轮询间隔，只影响此后创建的轮询任务
func (c *Client) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval.Store(int64(d))
	}
}

// Logger 客户端日志
func (c *Client) Logger() *zap.Logger { return c.logger }

// Done 客户端关闭时关闭
func (c *Client) Done() <-chan struct{} { return c.closed }

// Close 关闭客户端与底层传输
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.transport.Close()
	})
	return err
}

// NewCall 创建一次调用，请求标识在创建时分配
func NewCall[Resp any](c *Client, method string, params interface{}) *Call[Resp] {
	return &Call[Resp]{
		conn:    c.transport,
		request: jsonrpc.NewRequest(c.NextID(), method, params),
	}
}

// Request 发起调用并等待结果
func Request[Resp any](ctx context.Context, c *Client, method string, params interface{}) (Resp, error) {
	return NewCall[Resp](c, method, params).Await(ctx)
}
