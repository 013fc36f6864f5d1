package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// CallState 调用状态
type CallState int

const (
	// StatePrepared 请求尚未发出，参数可修改
	StatePrepared CallState = iota
	// StateAwaitingResponse 请求已交给传输，等待响应
	StateAwaitingResponse
	// StateComplete 已得到结果或错误
	StateComplete
)

func (s CallState) String() string {
	switch s {
	case StatePrepared:
		return "prepared"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

var (
	// ErrCallComplete 调用已结束或正在进行，不能重放
	ErrCallComplete = errors.New("call already started; a call cannot be replayed")
	// ErrParamsLocked 请求发出后不能修改参数
	ErrParamsLocked = errors.New("params can only be changed before the request is sent")
)

// Call 单次 JSON-RPC 调用
//
// Prepared → AwaitingResponse → Complete。每个 Call 最多发出一个请求；
// 参数在传输就绪后才序列化。
type Call[Resp any] struct {
	mu      sync.Mutex
	state   CallState
	started bool
	conn    transport.Transport
	request jsonrpc.Request
}

// State 当前状态
func (c *Call[Resp]) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ID 请求标识
func (c *Call[Resp]) ID() jsonrpc.ID { return c.request.ID }

// Method 方法名
func (c *Call[Resp]) Method() string { return c.request.Method }

// Params 当前参数
func (c *Call[Resp]) Params() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request.Params
}

// SetParams 修改参数，只在 Prepared 状态有效
func (c *Call[Resp]) SetParams(params interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePrepared {
		return ErrParamsLocked
	}
	c.request.Params = params
	return nil
}

// Await 发出请求并等待结果
//
// 协议错误以 *jsonrpc.ErrorPayload 返回；结果无法解码时返回
// *transport.DeserializationError。无论成功与否调用都进入 Complete。
func (c *Call[Resp]) Await(ctx context.Context) (Resp, error) {
	var zero Resp

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return zero, ErrCallComplete
	}
	c.started = true
	c.mu.Unlock()

	defer c.complete()

	if err := c.conn.Ready(ctx); err != nil {
		return zero, readyError(err)
	}

	c.mu.Lock()
	ser, err := c.request.Serialize()
	if err == nil {
		c.state = StateAwaitingResponse
	}
	c.mu.Unlock()
	if err != nil {
		return zero, &transport.SerializationError{Err: err}
	}

	resp, err := c.conn.Send(ctx, ser)
	if err != nil {
		return zero, err
	}
	return DecodeResult[Resp](resp)
}

func (c *Call[Resp]) complete() {
	c.mu.Lock()
	c.state = StateComplete
	c.mu.Unlock()
}

func readyError(err error) error {
	var te *transport.TransportError
	if errors.Is(err, transport.ErrBackendGone) || errors.As(err, &te) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &transport.TransportError{Op: "ready", Err: err}
}

// DecodeResult 把响应解码为 Resp
func DecodeResult[Resp any](resp jsonrpc.Response) (Resp, error) {
	var out Resp
	if resp.Payload.Error != nil {
		return out, resp.Payload.Error
	}
	if err := json.Unmarshal(resp.Payload.Result, &out); err != nil {
		return out, &transport.DeserializationError{Err: err, Text: string(resp.Payload.Result)}
	}
	return out, nil
}
