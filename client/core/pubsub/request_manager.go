package pubsub

import (
	"sort"

	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

// RequestManager 按请求标识关联在途请求与响应
//
// 只由服务协程访问，不加锁。
type RequestManager struct {
	reqs map[jsonrpc.ID]*InFlight
}

// NewRequestManager 创建请求管理器
func NewRequestManager() *RequestManager {
	return &RequestManager{reqs: make(map[jsonrpc.ID]*InFlight)}
}

// Len 在途请求数量
func (m *RequestManager) Len() int { return len(m.reqs) }

// Insert 登记在途请求；相同标识的旧请求被覆盖
func (m *RequestManager) Insert(f *InFlight) {
	m.reqs[f.ID()] = f
}

// Remove 移除并返回在途请求
func (m *RequestManager) Remove(id jsonrpc.ID) *InFlight {
	f, ok := m.reqs[id]
	if !ok {
		return nil
	}
	delete(m.reqs, id)
	return f
}

// HandleResponse 处理响应
//
// 未知标识的响应被丢弃。返回值 ok 为 true 时表示订阅请求成功，
// 调用方需要把 alias 升级为活跃订阅，再向 f 交付结果。
func (m *RequestManager) HandleResponse(resp jsonrpc.Response) (alias jsonrpc.SubscriptionID, f *InFlight, ok bool) {
	f = m.Remove(resp.ID)
	if f == nil {
		return alias, nil, false
	}
	alias, ok = f.Fulfill(resp)
	if !ok {
		return alias, nil, false
	}
	return alias, f, true
}

// Range 按标识顺序遍历在途请求
func (m *RequestManager) Range(fn func(*InFlight)) {
	ids := make([]jsonrpc.ID, 0, len(m.reqs))
	for id := range m.reqs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	for _, id := range ids {
		fn(m.reqs[id])
	}
}

// DropAll 以 err 结束所有在途请求
func (m *RequestManager) DropAll(err error) {
	for id, f := range m.reqs {
		f.Deliver(Result{Err: err})
		delete(m.reqs, id)
	}
}
