package heartbeat

import (
	"container/heap"
	"time"
)

// thresholdQueue 等待桶阈值的最小堆
type thresholdQueue []uint64

func (q thresholdQueue) Len() int            { return len(q) }
func (q thresholdQueue) Less(i, j int) bool  { return q[i] < q[j] }
func (q thresholdQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *thresholdQueue) Push(x interface{}) { *q = append(*q, x.(uint64)) }
func (q *thresholdQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// reapEntry 超时回收项；watcher 已离开 unconfirmed 时为过期项
type reapEntry struct {
	deadline time.Time
	w        *watcher
}

// reapQueue 按截止时间排序的最小堆
type reapQueue []reapEntry

func (q reapQueue) Len() int            { return len(q) }
func (q reapQueue) Less(i, j int) bool  { return q[i].deadline.Before(q[j].deadline) }
func (q reapQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *reapQueue) Push(x interface{}) { *q = append(*q, x.(reapEntry)) }
func (q *reapQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	old[n-1] = reapEntry{}
	*q = old[:n-1]
	return x
}

func (q reapQueue) peek() (reapEntry, bool) {
	if len(q) == 0 {
		return reapEntry{}, false
	}
	return q[0], true
}

var (
	_ heap.Interface = (*thresholdQueue)(nil)
	_ heap.Interface = (*reapQueue)(nil)
)
