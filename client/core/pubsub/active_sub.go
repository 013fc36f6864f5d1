package pubsub

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/provider/client/pkg/broadcast"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// DefaultSubscriptionBuffer 每个监听者缓存的推送数量
const DefaultSubscriptionBuffer = 16

// ActiveSubscription 服务端已确认的订阅
//
// LocalID 是原始请求报文的 keccak256，用于排序、判等以及重连后重新关联别名。
type ActiveSubscription struct {
	Request jsonrpc.SerializedRequest
	LocalID common.Hash
	sender  *broadcast.Sender[json.RawMessage]
}

// NewActiveSubscription 创建活跃订阅并返回第一个监听者
func NewActiveSubscription(req jsonrpc.SerializedRequest, bufferSize int) (*ActiveSubscription, *broadcast.Receiver[json.RawMessage]) {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriptionBuffer
	}
	sub := &ActiveSubscription{
		Request: req,
		LocalID: localIDOf(req),
		sender:  broadcast.New[json.RawMessage](bufferSize),
	}
	return sub, sub.sender.Subscribe()
}

func localIDOf(req jsonrpc.SerializedRequest) common.Hash {
	return crypto.Keccak256Hash(req.Bytes())
}

// Subscribe 新增监听者
func (s *ActiveSubscription) Subscribe() *broadcast.Receiver[json.RawMessage] {
	return s.sender.Subscribe()
}

// ListenerCount 当前监听者数量
func (s *ActiveSubscription) ListenerCount() int {
	return s.sender.ReceiverCount()
}

// Notify 向监听者分发推送；没有监听者时丢弃并返回 false
func (s *ActiveSubscription) Notify(result json.RawMessage) bool {
	if s.sender.ReceiverCount() == 0 {
		return false
	}
	_, err := s.sender.Send(result)
	return err == nil
}

// Equal 以 LocalID 判等
func (s *ActiveSubscription) Equal(other *ActiveSubscription) bool {
	return other != nil && s.LocalID == other.LocalID
}

// Close 关闭所有监听者
func (s *ActiveSubscription) Close() {
	s.sender.Close()
}
