package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/weisyn/provider/client/core/transport"
)

// DefaultConnectionBuffer 连接两端通道的缓冲大小
const DefaultConnectionBuffer = 64

type connState struct {
	done     chan struct{}
	doneOnce sync.Once
	err      error

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// ConnectionHandle 服务协程持有的连接端
type ConnectionHandle struct {
	toSocket   chan<- json.RawMessage
	fromSocket <-chan json.RawMessage
	state      *connState
}

// ConnectionInterface 后端（WebSocket、进程内）持有的连接端
type ConnectionInterface struct {
	fromFrontend <-chan json.RawMessage
	toFrontend   chan<- json.RawMessage
	state        *connState
}

// NewConnection 创建一对相互连接的端点
func NewConnection(bufferSize int) (*ConnectionHandle, *ConnectionInterface) {
	if bufferSize <= 0 {
		bufferSize = DefaultConnectionBuffer
	}
	out := make(chan json.RawMessage, bufferSize)
	in := make(chan json.RawMessage, bufferSize)
	state := &connState{
		done:     make(chan struct{}),
		shutdown: make(chan struct{}),
	}
	return &ConnectionHandle{toSocket: out, fromSocket: in, state: state},
		&ConnectionInterface{fromFrontend: out, toFrontend: in, state: state}
}

// Send 写出一条报文；后端已停止时返回 ErrBackendGone
func (h *ConnectionHandle) Send(ctx context.Context, msg json.RawMessage) error {
	select {
	case <-h.state.done:
		return transport.ErrBackendGone
	default:
	}
	select {
	case h.toSocket <- msg:
		return nil
	case <-h.state.done:
		return transport.ErrBackendGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Incoming 后端收到的报文
func (h *ConnectionHandle) Incoming() <-chan json.RawMessage { return h.fromSocket }

// Done 后端停止时关闭
func (h *ConnectionHandle) Done() <-chan struct{} { return h.state.done }

// Err 后端停止的原因
func (h *ConnectionHandle) Err() error {
	select {
	case <-h.state.done:
		return h.state.err
	default:
		return nil
	}
}

// Shutdown 请求后端关闭
func (h *ConnectionHandle) Shutdown() {
	h.state.shutdownOnce.Do(func() { close(h.state.shutdown) })
}

// Outgoing 服务协程写出的报文
func (i *ConnectionInterface) Outgoing() <-chan json.RawMessage { return i.fromFrontend }

// Deliver 把收到的报文交给服务协程；关闭中返回 false
func (i *ConnectionInterface) Deliver(msg json.RawMessage) bool {
	select {
	case i.toFrontend <- msg:
		return true
	case <-i.state.shutdown:
		return false
	case <-i.state.done:
		return false
	}
}

// ShutdownRequested 服务协程请求关闭时关闭
func (i *ConnectionInterface) ShutdownRequested() <-chan struct{} { return i.state.shutdown }

// Close 后端停止，err 为 nil 表示正常关闭
func (i *ConnectionInterface) Close(err error) {
	i.state.doneOnce.Do(func() {
		i.state.err = err
		close(i.state.done)
	})
}
