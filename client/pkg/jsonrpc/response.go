package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingPayload 响应既没有 result 也没有 error
var ErrMissingPayload = errors.New("response has neither result nor error")

// ResponsePayload 响应载荷：成功结果或错误对象，二者必居其一
type ResponsePayload struct {
	Result json.RawMessage
	Error  *ErrorPayload
}

// IsSuccess 是否为成功响应
func (p ResponsePayload) IsSuccess() bool { return p.Error == nil }

// Decode 将成功结果解码到 out
func (p ResponsePayload) Decode(out interface{}) error {
	if p.Error != nil {
		return p.Error
	}
	return json.Unmarshal(p.Result, out)
}

// Response JSON-RPC 响应
type Response struct {
	ID      ID
	Payload ResponsePayload
}

// SuccessResponse 构造成功响应
func SuccessResponse(id ID, result json.RawMessage) Response {
	return Response{ID: id, Payload: ResponsePayload{Result: result}}
}

// ErrorResponse 构造错误响应
func ErrorResponse(id ID, payload *ErrorPayload) Response {
	return Response{ID: id, Payload: ResponsePayload{Error: payload}}
}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// MarshalJSON 实现 json.Marshaler
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{JSONRPC: Version, ID: r.ID, Error: r.Payload.Error}
	if r.Payload.Error == nil {
		w.Result = r.Payload.Result
		if len(w.Result) == 0 {
			w.Result = json.RawMessage("null")
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON 实现 json.Unmarshaler
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Error != nil:
		r.Payload = ResponsePayload{Error: w.Error}
	case w.Result != nil:
		r.Payload = ResponsePayload{Result: w.Result}
	default:
		return ErrMissingPayload
	}
	r.ID = w.ID
	return nil
}

// DecodeResponse 解析单个响应报文
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(data), &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
