// Package types 定义节点返回的区块、交易与收据结构
package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockTag 区块编号或标签，用作 eth_getBlockByNumber 等方法的参数
type BlockTag string

const (
	LatestBlock    BlockTag = "latest"
	PendingBlock   BlockTag = "pending"
	EarliestBlock  BlockTag = "earliest"
	SafeBlock      BlockTag = "safe"
	FinalizedBlock BlockTag = "finalized"
)

// BlockNumber 以十六进制编号表示的 BlockTag
func BlockNumber(n uint64) BlockTag {
	return BlockTag(hexutil.EncodeUint64(n))
}

// Header 区块头中本库关心的字段
type Header struct {
	Hash       common.Hash     `json:"hash"`
	ParentHash common.Hash     `json:"parentHash"`
	Number     *hexutil.Uint64 `json:"number"`
	Timestamp  hexutil.Uint64  `json:"timestamp"`
	GasUsed    hexutil.Uint64  `json:"gasUsed"`
	GasLimit   hexutil.Uint64  `json:"gasLimit"`
	Miner      common.Address  `json:"miner"`
	BaseFee    *hexutil.Big    `json:"baseFeePerGas,omitempty"`
}

// Block 区块
//
// 待打包区块没有编号，Number 为 nil。
type Block struct {
	Header
	Transactions BlockTransactions `json:"transactions"`
}

// Height 区块高度；没有编号时 ok 为 false
func (b *Block) Height() (uint64, bool) {
	if b == nil || b.Number == nil {
		return 0, false
	}
	return uint64(*b.Number), true
}

// TxHashes 区块内全部交易哈希
func (b *Block) TxHashes() []common.Hash {
	if b == nil {
		return nil
	}
	return b.Transactions.Hashes()
}

// String 便于日志输出
func (b *Block) String() string {
	if h, ok := b.Height(); ok {
		return fmt.Sprintf("block #%d (%s)", h, b.Hash.Hex())
	}
	return fmt.Sprintf("block pending (%s)", b.Hash.Hex())
}

// BlockTransactions 区块交易列表：只有哈希，或完整交易
type BlockTransactions struct {
	hashes []common.Hash
	full   []Transaction
}

// HashesOnly 由哈希构造交易列表
func HashesOnly(hashes ...common.Hash) BlockTransactions {
	return BlockTransactions{hashes: hashes}
}

// FullTransactions 由完整交易构造交易列表
func FullTransactions(txs ...Transaction) BlockTransactions {
	return BlockTransactions{full: txs}
}

// IsFull 是否包含完整交易
func (t BlockTransactions) IsFull() bool { return t.full != nil }

// Full 完整交易；只有哈希时为 nil
func (t BlockTransactions) Full() []Transaction { return t.full }

// Len 交易数量
func (t BlockTransactions) Len() int {
	if t.full != nil {
		return len(t.full)
	}
	return len(t.hashes)
}

// Hashes 交易哈希
func (t BlockTransactions) Hashes() []common.Hash {
	if t.full == nil {
		return t.hashes
	}
	out := make([]common.Hash, len(t.full))
	for i := range t.full {
		out[i] = t.full[i].Hash
	}
	return out
}

// MarshalJSON 按原形态输出
func (t BlockTransactions) MarshalJSON() ([]byte, error) {
	if t.full != nil {
		return json.Marshal(t.full)
	}
	if t.hashes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.hashes)
}

// UnmarshalJSON 根据首个元素判断是哈希还是完整交易
func (t *BlockTransactions) UnmarshalJSON(data []byte) error {
	*t = BlockTransactions{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("block transactions: %w", err)
	}
	if len(items) == 0 {
		t.hashes = []common.Hash{}
		return nil
	}
	first := bytes.TrimSpace(items[0])
	if len(first) > 0 && first[0] == '"' {
		hashes := make([]common.Hash, 0, len(items))
		if err := json.Unmarshal(data, &hashes); err != nil {
			return fmt.Errorf("block transaction hashes: %w", err)
		}
		t.hashes = hashes
		return nil
	}
	full := make([]Transaction, 0, len(items))
	if err := json.Unmarshal(data, &full); err != nil {
		return fmt.Errorf("block transaction objects: %w", err)
	}
	t.full = full
	return nil
}
