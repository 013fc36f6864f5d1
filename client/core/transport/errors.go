package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// ErrBackendGone 后台连接任务已停止，请求不会再得到响应
var ErrBackendGone = errors.New("backend connection task has stopped")

// TransportError 连接层错误
//
// Recoverable 为 true 时，同一请求可以立即重试（限流、网关暂时不可用、超时等）。
type TransportError struct {
	Op          string
	Err         error
	Recoverable bool
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("transport error: %v", e.Err)
	}
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SerializationError 请求序列化失败
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError 响应或结果无法解码，Text 为原始报文
type DeserializationError struct {
	Err  error
	Text string
}

func (e *DeserializationError) Error() string {
	const maxText = 256
	text := e.Text
	if len(text) > maxText {
		text = text[:maxText] + "..."
	}
	return fmt.Sprintf("deserialization error: %v, text: %s", e.Err, text)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// NewTransportError 包装连接层错误；网络超时视为可恢复
func NewTransportError(op string, err error) *TransportError {
	var netErr net.Error
	recoverable := errors.As(err, &netErr) && netErr.Timeout()
	return &TransportError{Op: op, Err: err, Recoverable: recoverable}
}

// IsRecoverable 判断错误是否允许立即重试
//
// 只有可恢复的传输错误才算；服务端返回的错误对象（包括限流）不算。
func IsRecoverable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransportError
	return errors.As(err, &te) && te.Recoverable
}

// IsProtocolError 是否为服务端返回的 JSON-RPC 错误对象
func IsProtocolError(err error) bool {
	var ep *jsonrpc.ErrorPayload
	return errors.As(err, &ep)
}

// IsDeserializationError 是否为解码错误
func IsDeserializationError(err error) bool {
	var de *DeserializationError
	return errors.As(err, &de)
}
