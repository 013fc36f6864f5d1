// Package testutil 提供测试用的传输替身
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// Handler 处理一次调用：返回结果、服务端错误对象或传输错误
type Handler func(params json.RawMessage) (json.RawMessage, *jsonrpc.ErrorPayload, error)

// Result 固定返回 v 的 Handler
func Result(v interface{}) Handler {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal mock result: %v", err))
	}
	return func(json.RawMessage) (json.RawMessage, *jsonrpc.ErrorPayload, error) {
		return raw, nil, nil
	}
}

// Sequence 依次返回各 Handler 的结果，用尽后重复最后一个
func Sequence(handlers ...Handler) Handler {
	var (
		mu sync.Mutex
		i  int
	)
	return func(params json.RawMessage) (json.RawMessage, *jsonrpc.ErrorPayload, error) {
		mu.Lock()
		h := handlers[i]
		if i < len(handlers)-1 {
			i++
		}
		mu.Unlock()
		return h(params)
	}
}

// Fail 固定返回传输错误的 Handler
func Fail(err error) Handler {
	return func(json.RawMessage) (json.RawMessage, *jsonrpc.ErrorPayload, error) {
		return nil, nil, err
	}
}

// Reject 固定返回服务端错误对象的 Handler
func Reject(code int64, message string) Handler {
	return func(json.RawMessage) (json.RawMessage, *jsonrpc.ErrorPayload, error) {
		return nil, jsonrpc.NewErrorPayload(code, message), nil
	}
}

// Call 记录的一次调用
type Call struct {
	ID     jsonrpc.ID
	Method string
	Params json.RawMessage
}

// MockTransport 进程内请求/响应传输替身
type MockTransport struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	closed   bool

	// ReadyGate 非空时 Ready 阻塞到通道关闭
	ReadyGate chan struct{}
}

var _ transport.Transport = (*MockTransport)(nil)

// NewMockTransport 创建传输替身
func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]Handler)}
}

// Handle 注册方法处理器
func (m *MockTransport) Handle(method string, h Handler) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
	return m
}

// Calls 已收到的调用
func (m *MockTransport) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 某方法被调用的次数
func (m *MockTransport) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Ready 实现 transport.Transport
func (m *MockTransport) Ready(ctx context.Context) error {
	if gate := m.ReadyGate; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return transport.ErrBackendGone
	}
	return nil
}

// Send 实现 transport.Transport
func (m *MockTransport) Send(ctx context.Context, req jsonrpc.SerializedRequest) (jsonrpc.Response, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return jsonrpc.Response{}, transport.ErrBackendGone
	}
	m.calls = append(m.calls, Call{ID: req.ID(), Method: req.Method(), Params: req.Params()})
	h, ok := m.handlers[req.Method()]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return jsonrpc.Response{}, err
	}
	if !ok {
		return jsonrpc.ErrorResponse(req.ID(), jsonrpc.NewErrorPayload(jsonrpc.CodeMethodNotFound, "method not found: "+req.Method())), nil
	}

	result, payload, err := h(req.Params())
	if err != nil {
		return jsonrpc.Response{}, err
	}
	if payload != nil {
		return jsonrpc.ErrorResponse(req.ID(), payload), nil
	}
	return jsonrpc.SuccessResponse(req.ID(), result), nil
}

// Close 实现 transport.Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
