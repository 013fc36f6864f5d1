package pubsub

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/weisyn/provider/client/core/transport"
)

// WSOptions WebSocket 后端配置
type WSOptions struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	Headers          http.Header
	Buffer           int
	Logger           *zap.Logger
}

func (o *WSOptions) applyDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type wsBackend struct {
	conn   *websocket.Conn
	iface  *ConnectionInterface
	ping   time.Duration
	logger *zap.Logger
}

// ConnectWS 建立 WebSocket 连接并启动收发协程
func ConnectWS(ctx context.Context, endpoint string, opts WSOptions) (*ConnectionHandle, error) {
	opts.applyDefaults()

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, opts.Headers)
	if resp != nil && resp.Body != nil {
		defer func() {
			if err := resp.Body.Close(); err != nil {
				opts.Logger.Debug("关闭握手响应体失败", zap.Error(err))
			}
		}()
	}
	if err != nil {
		return nil, transport.NewTransportError("dial websocket", err)
	}

	handle, iface := NewConnection(opts.Buffer)
	b := &wsBackend{
		conn:  conn,
		iface: iface,
		ping:  opts.PingInterval,
		logger: opts.Logger.With(
			zap.String("transport", "ws"),
			zap.String("endpoint", endpoint),
			zap.String("conn_id", uuid.NewString())),
	}
	go b.readLoop()
	go b.writeLoop()

	b.logger.Debug("WebSocket 已连接")
	return handle, nil
}

// DialWS 连接 WebSocket 端点并启动 pubsub 服务，断线后自动重连
func DialWS(ctx context.Context, endpoint string, wsOpts WSOptions, opts Options) (*Frontend, error) {
	handle, err := ConnectWS(ctx, endpoint, wsOpts)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = wsOpts.Logger
	}
	opts.Connector = func(ctx context.Context) (*ConnectionHandle, error) {
		return ConnectWS(ctx, endpoint, wsOpts)
	}
	return Spawn(handle, opts), nil
}

// readLoop 消息读取循环
func (b *wsBackend) readLoop() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.iface.ShutdownRequested():
				b.iface.Close(nil)
			default:
				b.iface.Close(transport.NewTransportError("websocket read", err))
			}
			return
		}
		if !b.iface.Deliver(data) {
			return
		}
	}
}

// writeLoop 消息写出循环，同时负责心跳与关闭
func (b *wsBackend) writeLoop() {
	ticker := time.NewTicker(b.ping)
	defer func() {
		ticker.Stop()
		if err := b.conn.Close(); err != nil {
			b.logger.Debug("关闭 WebSocket 失败", zap.Error(err))
		}
	}()

	for {
		select {
		case msg := <-b.iface.Outgoing():
			if err := b.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				b.iface.Close(transport.NewTransportError("websocket write", err))
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(b.ping / 2)
			if err := b.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				b.iface.Close(transport.NewTransportError("websocket ping", err))
				return
			}

		case <-b.iface.ShutdownRequested():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = b.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
			b.iface.Close(nil)
			return

		case <-b.iface.state.done:
			return
		}
	}
}
