// Package clock 提供 Clock 的系统实现与测试实现
package clock

import (
	"time"

	infraClock "github.com/weisyn/provider/pkg/interfaces/infrastructure/clock"
)

// SystemClock 使用系统真实时间
type SystemClock struct{}

// NewSystemClock 创建系统时钟
func NewSystemClock() infraClock.Clock { return SystemClock{} }

func (SystemClock) Now() time.Time                  { return time.Now() }
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (SystemClock) Until(t time.Time) time.Duration { return time.Until(t) }
