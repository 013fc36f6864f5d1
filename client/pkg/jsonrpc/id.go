// Package jsonrpc 定义 JSON-RPC 2.0 线上数据类型
//
// 包含请求、响应、错误对象、订阅推送通知，以及双工连接上
// 用于区分"响应"与"推送"的 PubSubItem 解码逻辑。
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type idKind uint8

const (
	idNone idKind = iota
	idNumber
	idString
)

// ID JSON-RPC 请求标识
//
// 可以是数字、字符串或 null。ID 是可比较类型，可直接作为 map 键。
type ID struct {
	kind idKind
	num  uint64
	str  string
}

// NumberID 创建数字标识
func NumberID(n uint64) ID { return ID{kind: idNumber, num: n} }

// StringID 创建字符串标识
func StringID(s string) ID { return ID{kind: idString, str: s} }

// NoneID 空标识（null）
func NoneID() ID { return ID{} }

// IsNone 是否为 null 标识
func (id ID) IsNone() bool { return id.kind == idNone }

// Number 返回数字标识的值
func (id ID) Number() (uint64, bool) { return id.num, id.kind == idNumber }

func (id ID) String() string {
	switch id.kind {
	case idNumber:
		return strconv.FormatUint(id.num, 10)
	case idString:
		return strconv.Quote(id.str)
	default:
		return "null"
	}
}

// Less 排序：数字 < 字符串 < null
func (id ID) Less(other ID) bool {
	rank := func(k idKind) int {
		switch k {
		case idNumber:
			return 0
		case idString:
			return 1
		default:
			return 2
		}
	}
	if id.kind != other.kind {
		return rank(id.kind) < rank(other.kind)
	}
	switch id.kind {
	case idNumber:
		return id.num < other.num
	case idString:
		return id.str < other.str
	default:
		return false
	}
}

// MarshalJSON 实现 json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idNumber:
		return []byte(strconv.FormatUint(id.num, 10)), nil
	case idString:
		return json.Marshal(id.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 实现 json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = NoneID()
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	default:
		n, err := strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %s: %w", data, err)
		}
		*id = NumberID(n)
		return nil
	}
}
