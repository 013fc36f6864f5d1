package heartbeat

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PendingTransactionConfig 待确认交易的监听配置
//
// 注册后不可修改。Timeout 为 nil 表示不设超时。
type PendingTransactionConfig struct {
	TxHash        common.Hash
	Confirmations uint64
	Timeout       *time.Duration
}

// NewPendingTransactionConfig 默认 0 确认、无超时
func NewPendingTransactionConfig(txHash common.Hash) PendingTransactionConfig {
	return PendingTransactionConfig{TxHash: txHash}
}

// WithConfirmations 设置确认深度
func (c PendingTransactionConfig) WithConfirmations(n uint64) PendingTransactionConfig {
	c.Confirmations = n
	return c
}

// WithTimeout 设置超时；d <= 0 时清除超时
func (c PendingTransactionConfig) WithTimeout(d time.Duration) PendingTransactionConfig {
	if d <= 0 {
		c.Timeout = nil
		return c
	}
	c.Timeout = &d
	return c
}
