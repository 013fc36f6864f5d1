package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version JSON-RPC 协议版本
const Version = "2.0"

// 订阅相关方法名
const (
	MethodSubscribe    = "eth_subscribe"
	MethodUnsubscribe  = "eth_unsubscribe"
	MethodSubscription = "eth_subscription"
)

// Request 尚未序列化的请求
type Request struct {
	ID     ID
	Method string
	Params interface{}
}

// NewRequest 创建请求
func NewRequest(id ID, method string, params interface{}) Request {
	return Request{ID: id, Method: method, Params: params}
}

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Serialize 序列化请求
//
// 参数只序列化一次，结果可以多次发送。
func (r Request) Serialize() (SerializedRequest, error) {
	var params json.RawMessage
	if r.Params != nil {
		raw, err := json.Marshal(r.Params)
		if err != nil {
			return SerializedRequest{}, fmt.Errorf("marshal params of %s: %w", r.Method, err)
		}
		params = raw
	}
	return newSerialized(r.ID, r.Method, params)
}

func newSerialized(id ID, method string, params json.RawMessage) (SerializedRequest, error) {
	raw, err := json.Marshal(wireRequest{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return SerializedRequest{}, fmt.Errorf("marshal request %s: %w", method, err)
	}
	return SerializedRequest{id: id, method: method, params: params, raw: raw}, nil
}

// SerializedRequest 已序列化的请求
type SerializedRequest struct {
	id     ID
	method string
	params json.RawMessage
	raw    json.RawMessage
}

// ID 请求标识
func (s SerializedRequest) ID() ID { return s.id }

// Method 方法名
func (s SerializedRequest) Method() string { return s.method }

// Params 序列化后的参数，可能为空
func (s SerializedRequest) Params() json.RawMessage { return s.params }

// Bytes 完整请求报文
func (s SerializedRequest) Bytes() json.RawMessage { return s.raw }

// IsSubscription 是否为订阅请求
func (s SerializedRequest) IsSubscription() bool { return s.method == MethodSubscribe }

// WithID 以新的标识重新生成报文，参数保持不变
func (s SerializedRequest) WithID(id ID) (SerializedRequest, error) {
	return newSerialized(id, s.method, s.params)
}

// MarshalJSON 直接输出已序列化的报文
func (s SerializedRequest) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("null"), nil
	}
	return s.raw, nil
}
