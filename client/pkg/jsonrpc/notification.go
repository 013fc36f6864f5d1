package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// SubscriptionID 服务端分配的订阅别名
//
// 以 256 位整数保存，"0x01" 与 "0x1" 视为同一个订阅。
type SubscriptionID = uint256.Int

// ParseSubscriptionID 从服务端返回的 JSON 值中解析订阅别名
func ParseSubscriptionID(raw json.RawMessage) (SubscriptionID, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return SubscriptionID{}, fmt.Errorf("subscription id is not a string: %w", err)
	}
	return ParseSubscriptionIDString(s)
}

// ParseSubscriptionIDString 解析十六进制订阅别名
func ParseSubscriptionIDString(s string) (SubscriptionID, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits == "" {
		return SubscriptionID{}, fmt.Errorf("empty subscription id %q", s)
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return SubscriptionID{}, fmt.Errorf("invalid subscription id %q", s)
	}
	id, overflow := uint256.FromBig(n)
	if overflow {
		return SubscriptionID{}, fmt.Errorf("subscription id %q overflows 256 bits", s)
	}
	return *id, nil
}

// Notification eth_subscription 推送
type Notification struct {
	Subscription SubscriptionID
	Result       json.RawMessage
}

type wireNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// MarshalJSON 输出完整的 eth_subscription 报文
func (n Notification) MarshalJSON() ([]byte, error) {
	params, err := json.Marshal(wireNotificationParams{
		Subscription: n.Subscription.Hex(),
		Result:       n.Result,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}{Version, MethodSubscription, params})
}

// PubSubItem 双工连接上收到的一条消息：响应或推送
type PubSubItem struct {
	Response     *Response
	Notification *Notification
}

var (
	// ErrUnexpectedMethod 不带 id 的消息不是 eth_subscription 推送
	ErrUnexpectedMethod = errors.New("message without id is not a subscription notification")
	// ErrNotificationError 推送报文中带有 error 字段
	ErrNotificationError = errors.New("subscription notification carries an error object")
)

type wireItem struct {
	Error  *ErrorPayload   `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// DecodePubSubItem 解析双工连接上的一条消息
//
// 带 id 的消息是响应；不带 id 的消息必须是 eth_subscription 推送。
func DecodePubSubItem(data []byte) (PubSubItem, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return PubSubItem{}, fmt.Errorf("decode pubsub item: %w", err)
	}

	// "id": null 也算响应（例如服务端解析失败时的错误响应）
	if _, hasID := fields["id"]; hasID {
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return PubSubItem{}, fmt.Errorf("decode pubsub response: %w", err)
		}
		return PubSubItem{Response: &resp}, nil
	}

	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return PubSubItem{}, fmt.Errorf("decode pubsub item: %w", err)
	}

	if w.Error != nil {
		return PubSubItem{}, fmt.Errorf("%w: %s", ErrNotificationError, w.Error.Error())
	}
	if w.Method != MethodSubscription {
		return PubSubItem{}, fmt.Errorf("%w: method %q", ErrUnexpectedMethod, w.Method)
	}

	var params wireNotificationParams
	if err := json.Unmarshal(w.Params, &params); err != nil {
		return PubSubItem{}, fmt.Errorf("decode notification params: %w", err)
	}
	if params.Result == nil {
		return PubSubItem{}, errors.New("notification params missing result")
	}
	alias, err := ParseSubscriptionIDString(params.Subscription)
	if err != nil {
		return PubSubItem{}, err
	}
	return PubSubItem{Notification: &Notification{Subscription: alias, Result: params.Result}}, nil
}
