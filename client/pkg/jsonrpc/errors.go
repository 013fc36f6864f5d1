package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// 标准JSON-RPC 2.0错误码
const (
	// CodeParseError 解析错误
	CodeParseError = -32700
	// CodeInvalidRequest 无效请求
	CodeInvalidRequest = -32600
	// CodeMethodNotFound 方法不存在
	CodeMethodNotFound = -32601
	// CodeInvalidParams 无效参数
	CodeInvalidParams = -32602
	// CodeInternalError 内部错误
	CodeInternalError = -32603
)

// 节点常见的服务端错误码（-32000至-32099）
const (
	// CodeServerError 通用服务端错误
	CodeServerError = -32000
	// CodeResourceNotFound 资源不存在
	CodeResourceNotFound = -32001
	// CodeLimitExceeded 请求超过限制
	CodeLimitExceeded = -32005
)

// ErrorPayload 服务端返回的 JSON-RPC 错误对象
//
// 作为 error 使用时表示协议错误：请求已送达，但服务端拒绝执行。
type ErrorPayload struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorPayload) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("JSON-RPC error %d: %s, data: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// IsRateLimited 是否为限流类错误
func (e *ErrorPayload) IsRateLimited() bool {
	return e.Code == 429 || e.Code == CodeLimitExceeded
}

// NewErrorPayload 创建错误对象
func NewErrorPayload(code int64, message string) *ErrorPayload {
	return &ErrorPayload{Code: code, Message: message}
}
