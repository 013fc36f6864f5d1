// Package clock 定义时间源接口
package clock

import "time"

// Clock 统一的时间源
//
// 超时与截止时间都基于 Clock 计算，测试中可替换为可推进的实现。
type Clock interface {
	// Now 当前时间
	Now() time.Time

	// Since 从 t 到现在的时长
	Since(t time.Time) time.Duration

	// Until 从现在到 t 的时长，t 已过去时为负值
	Until(t time.Time) time.Duration
}
