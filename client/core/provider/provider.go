// Package provider 面向调用方的节点会话
//
// Provider 组合 JSON-RPC 客户端、推送订阅、轮询任务与确认引擎：
// HTTP 端点通过区块过滤器轮询获取新区块，WebSocket 端点通过 newHeads
// 订阅获取新区块，二者都作为确认引擎的区块来源。
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/config"
	"github.com/weisyn/provider/client/core/heartbeat"
	"github.com/weisyn/provider/client/core/pubsub"
	"github.com/weisyn/provider/client/core/rpc"
	"github.com/weisyn/provider/client/core/transport"
	infraClock "github.com/weisyn/provider/pkg/interfaces/infrastructure/clock"
)

var (
	// ErrPubSubUnavailable 传输不支持推送订阅
	ErrPubSubUnavailable = errors.New("transport does not support subscriptions")
	// ErrReceiptNotFound 交易已确认但节点没有返回回执
	ErrReceiptNotFound = errors.New("transaction receipt not found")
)

// Options 会话配置
type Options struct {
	// IsLocal 节点在本机；Dial 会按端点地址自动判断
	IsLocal bool

	RequestTimeout     time.Duration
	Headers            map[string]string
	WSHandshakeTimeout time.Duration
	WSPingInterval     time.Duration
	ReconnectAttempts  int
	ReconnectBackoff   time.Duration
	SubscriptionBuffer int

	PollInterval    time.Duration
	PollChannelSize int
	// PollMaxRetries 为 0 时使用默认重试预算
	PollMaxRetries int

	HeartbeatChannelSize int
	DefaultConfirmations uint64
	DefaultTimeout       time.Duration

	Clock  infraClock.Clock
	Logger *zap.Logger
}

// OptionsFromConfig 由客户端配置生成会话配置
func OptionsFromConfig(cfg *config.Options, logger *zap.Logger) Options {
	if cfg == nil {
		cfg = config.Default()
	}
	return Options{
		RequestTimeout:       cfg.RequestTimeout,
		Headers:              cfg.Headers,
		WSHandshakeTimeout:   cfg.WSHandshakeTimeout,
		WSPingInterval:       cfg.WSPingInterval,
		ReconnectAttempts:    cfg.ReconnectAttempts,
		ReconnectBackoff:     cfg.ReconnectBackoff,
		SubscriptionBuffer:   cfg.SubscriptionBuffer,
		PollInterval:         cfg.PollInterval,
		PollChannelSize:      cfg.PollChannelSize,
		PollMaxRetries:       cfg.PollMaxRetries,
		HeartbeatChannelSize: cfg.HeartbeatChannelSize,
		DefaultConfirmations: cfg.DefaultConfirmations,
		DefaultTimeout:       cfg.DefaultTimeout,
		Logger:               logger,
	}
}

// Provider 节点会话
type Provider struct {
	client *rpc.Client
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	hb         *heartbeat.Handle
	hbCancel   context.CancelFunc
	hbStarting chan struct{}
	closed     bool
}

// New 在已有传输上创建会话
func New(t transport.Transport, opts Options) *Provider {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Provider{
		client: rpc.NewClient(t, rpc.ClientOptions{
			IsLocal:      opts.IsLocal,
			PollInterval: opts.PollInterval,
			Logger:       opts.Logger,
		}),
		opts:   opts,
		logger: opts.Logger.With(zap.String("module", "provider")),
	}
}

// Dial 按端点协议选择传输并创建会话
//
// http(s) 使用 HTTP 传输；ws(s) 建立 WebSocket 连接并启动推送服务。
func Dial(ctx context.Context, endpoint string, opts Options) (*Provider, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.IsLocal = opts.IsLocal || transport.IsLocalEndpoint(endpoint)

	var t transport.Transport
	switch u.Scheme {
	case "http", "https":
		t = transport.NewHTTPTransport(endpoint, transport.HTTPOptions{
			Timeout: opts.RequestTimeout,
			Headers: opts.Headers,
			Logger:  opts.Logger,
		})
	case "ws", "wss":
		headers := http.Header{}
		for k, v := range opts.Headers {
			headers.Set(k, v)
		}
		front, err := pubsub.DialWS(ctx, endpoint, pubsub.WSOptions{
			HandshakeTimeout: opts.WSHandshakeTimeout,
			PingInterval:     opts.WSPingInterval,
			Headers:          headers,
			Logger:           opts.Logger,
		}, pubsub.Options{
			SubscriptionBuffer: opts.SubscriptionBuffer,
			ReconnectAttempts:  opts.ReconnectAttempts,
			ReconnectBackoff:   opts.ReconnectBackoff,
			Logger:             opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		t = front
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	p := New(t, opts)
	p.logger.Info("会话已建立",
		zap.String("endpoint", u.Redacted()),
		zap.Bool("pubsub", p.SupportsPubSub()),
		zap.Duration("poll_interval", p.client.PollInterval()))
	return p, nil
}

// Client 底层 JSON-RPC 客户端
func (p *Provider) Client() *rpc.Client { return p.client }

// SupportsPubSub 传输是否支持推送订阅
func (p *Provider) SupportsPubSub() bool {
	_, ok := p.client.PubSub()
	return ok
}

// Call 发起一次调用并解码结果
func Call[Resp any](ctx context.Context, p *Provider, method string, params interface{}) (Resp, error) {
	return rpc.Request[Resp](ctx, p.client, method, params)
}

// Raw 发起一次调用，返回未解码的结果
func (p *Provider) Raw(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return Call[json.RawMessage](ctx, p, method, params)
}

// Poll 创建轮询任务配置，通道大小与重试预算取会话配置
func Poll[Resp any](p *Provider, method string, params interface{}) *rpc.PollerBuilder[Resp] {
	b := rpc.NewPoller[Resp](p.client, method, params).
		WithChannelSize(p.opts.PollChannelSize)
	if p.opts.PollMaxRetries > 0 {
		b = b.WithMaxRetries(p.opts.PollMaxRetries)
	}
	return b
}

// Close 停止确认引擎并关闭传输
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	hb, cancel := p.hb, p.hbCancel
	p.hb, p.hbCancel = nil, nil
	p.mu.Unlock()

	if hb != nil {
		hb.Close()
		cancel()
	}
	p.logger.Debug("会话关闭")
	return p.client.Close()
}
