package pubsub

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/broadcast"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// SubscriptionManager 订阅别名到活跃订阅的映射
//
// 别名与 LocalID 一一对应；重连后服务端分配新别名时只需重新映射。
// 只由服务协程访问，不加锁。
type SubscriptionManager struct {
	bufferSize   int
	byLocal      map[common.Hash]*ActiveSubscription
	localToAlias map[common.Hash]jsonrpc.SubscriptionID
	aliasToLocal map[jsonrpc.SubscriptionID]common.Hash
}

// NewSubscriptionManager 创建订阅管理器
func NewSubscriptionManager(bufferSize int) *SubscriptionManager {
	return &SubscriptionManager{
		bufferSize:   bufferSize,
		byLocal:      make(map[common.Hash]*ActiveSubscription),
		localToAlias: make(map[common.Hash]jsonrpc.SubscriptionID),
		aliasToLocal: make(map[jsonrpc.SubscriptionID]common.Hash),
	}
}

// Len 活跃订阅数量
func (m *SubscriptionManager) Len() int { return len(m.byLocal) }

// Upsert 登记订阅请求与服务端别名，返回一个新的监听者
//
// 同一请求已存在时沿用原订阅，只更新别名。
func (m *SubscriptionManager) Upsert(req jsonrpc.SerializedRequest, alias jsonrpc.SubscriptionID) (*ActiveSubscription, *broadcast.Receiver[json.RawMessage]) {
	sub, rx := NewActiveSubscription(req, m.bufferSize)
	if existing, ok := m.byLocal[sub.LocalID]; ok {
		sub.Close()
		m.remap(existing.LocalID, alias)
		return existing, existing.Subscribe()
	}
	m.byLocal[sub.LocalID] = sub
	m.remap(sub.LocalID, alias)
	return sub, rx
}

// Rebind 重新订阅成功后把新别名关联到已有订阅，不创建监听者
func (m *SubscriptionManager) Rebind(local common.Hash, alias jsonrpc.SubscriptionID) bool {
	if _, ok := m.byLocal[local]; !ok {
		return false
	}
	m.remap(local, alias)
	return true
}

func (m *SubscriptionManager) remap(local common.Hash, alias jsonrpc.SubscriptionID) {
	if old, ok := m.localToAlias[local]; ok {
		delete(m.aliasToLocal, old)
	}
	if prevLocal, ok := m.aliasToLocal[alias]; ok && prevLocal != local {
		delete(m.localToAlias, prevLocal)
	}
	m.localToAlias[local] = alias
	m.aliasToLocal[alias] = local
}

// Get 按别名查找活跃订阅
func (m *SubscriptionManager) Get(alias jsonrpc.SubscriptionID) (*ActiveSubscription, bool) {
	local, ok := m.aliasToLocal[alias]
	if !ok {
		return nil, false
	}
	sub, ok := m.byLocal[local]
	return sub, ok
}

// Alias 返回订阅当前的别名
func (m *SubscriptionManager) Alias(local common.Hash) (jsonrpc.SubscriptionID, bool) {
	alias, ok := m.localToAlias[local]
	return alias, ok
}

// Notify 分发推送
//
// found 为 false 表示别名未知；delivered 为 false 表示订阅存在但没有监听者。
func (m *SubscriptionManager) Notify(n jsonrpc.Notification) (found, delivered bool) {
	sub, ok := m.Get(n.Subscription)
	if !ok {
		return false, false
	}
	return true, sub.Notify(n.Result)
}

// Remove 移除订阅并关闭其监听者
func (m *SubscriptionManager) Remove(alias jsonrpc.SubscriptionID) bool {
	local, ok := m.aliasToLocal[alias]
	if !ok {
		return false
	}
	delete(m.aliasToLocal, alias)
	delete(m.localToAlias, local)
	if sub, ok := m.byLocal[local]; ok {
		sub.Close()
		delete(m.byLocal, local)
	}
	return true
}

// Subscriptions 按 LocalID 排序的订阅列表，带原始请求以便重新订阅
func (m *SubscriptionManager) Subscriptions() []transport.SubscriptionInfo {
	out := make([]transport.SubscriptionInfo, 0, len(m.byLocal))
	for local, sub := range m.byLocal {
		out = append(out, transport.SubscriptionInfo{
			Alias:     m.localToAlias[local],
			LocalID:   local,
			Request:   sub.Request,
			Listeners: sub.ListenerCount(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].LocalID[:], out[j].LocalID[:]) < 0
	})
	return out
}

// CloseAll 关闭所有订阅
func (m *SubscriptionManager) CloseAll() {
	for local, sub := range m.byLocal {
		sub.Close()
		delete(m.byLocal, local)
	}
	m.localToAlias = make(map[common.Hash]jsonrpc.SubscriptionID)
	m.aliasToLocal = make(map[jsonrpc.SubscriptionID]common.Hash)
}
