package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"

	"github.com/weisyn/provider/client/core/pubsub"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
	"github.com/weisyn/provider/client/pkg/types"
)

type wireReq struct {
	ID     jsonrpc.ID      `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeChain 内存中的假节点：按需出块，支持区块过滤器与 newHeads 订阅
type fakeChain struct {
	mu       sync.Mutex
	blocks   []*types.Block
	byHash   map[common.Hash]*types.Block
	receipts map[common.Hash]*types.Receipt
	mempool  []common.Hash
	filters  map[string][]common.Hash
	subs     map[string]func(json.RawMessage)
	calls    map[string]int
	nextID   int

	gates   map[string]chan struct{}
	arrived map[string]int
}

func newFakeChain() *fakeChain {
	c := &fakeChain{
		byHash:   make(map[common.Hash]*types.Block),
		receipts: make(map[common.Hash]*types.Receipt),
		filters:  make(map[string][]common.Hash),
		subs:     make(map[string]func(json.RawMessage)),
		calls:    make(map[string]int),
		gates:    make(map[string]chan struct{}),
		arrived:  make(map[string]int),
	}
	c.mine()
	return c
}

// mine 打包内存池与额外交易，出一个新区块
func (c *fakeChain) mine(extra ...common.Hash) *types.Block {
	c.mu.Lock()
	height := uint64(len(c.blocks))
	txs := append(c.mempool, extra...)
	c.mempool = nil

	n := hexutil.Uint64(height)
	b := &types.Block{
		Header: types.Header{
			Hash:   common.BigToHash(new(big.Int).SetUint64(0xb000 + height)),
			Number: &n,
		},
		Transactions: types.HashesOnly(txs...),
	}
	if height > 0 {
		b.ParentHash = c.blocks[height-1].Hash
	}
	c.blocks = append(c.blocks, b)
	c.byHash[b.Hash] = b
	for i, tx := range txs {
		c.receipts[tx] = &types.Receipt{
			TransactionHash:  tx,
			TransactionIndex: hexutil.Uint(i),
			BlockHash:        b.Hash,
			BlockNumber:      n,
			Status:           types.ReceiptStatusSuccessful,
		}
	}
	for id := range c.filters {
		c.filters[id] = append(c.filters[id], b.Hash)
	}
	head, _ := json.Marshal(b.Header)
	pushes := make([]func(json.RawMessage), 0, len(c.subs))
	for _, push := range c.subs {
		pushes = append(pushes, push)
	}
	c.mu.Unlock()

	for _, push := range pushes {
		push(head)
	}
	return b
}

func (c *fakeChain) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// hold 让 method 的请求停在处理之前，直到返回的 release 被调用
func (c *fakeChain) hold(method string) (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.gates[method] = gate
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// waitGate 记录到达并等待放行
func (c *fakeChain) waitGate(method string) {
	c.mu.Lock()
	c.arrived[method]++
	gate := c.gates[method]
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (c *fakeChain) arrivals(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arrived[method]
}

func (c *fakeChain) id() string {
	c.nextID++
	return hexutil.EncodeUint64(uint64(c.nextID))
}

// handle 处理一个请求；push 为 nil 时不支持订阅
func (c *fakeChain) handle(req wireReq, push func(alias string, result json.RawMessage)) (interface{}, *jsonrpc.ErrorPayload) {
	var params []json.RawMessage
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	str := func(i int) string {
		var s string
		if i < len(params) {
			_ = json.Unmarshal(params[i], &s)
		}
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.Method]++

	switch req.Method {
	case "eth_blockNumber":
		return hexutil.Uint64(len(c.blocks) - 1), nil
	case "eth_chainId":
		return hexutil.Uint64(1337), nil
	case "eth_getBlockByHash":
		if b, ok := c.byHash[common.HexToHash(str(0))]; ok {
			return b, nil
		}
		return nil, nil
	case "eth_getBlockByNumber":
		tag := str(0)
		if tag == string(types.LatestBlock) {
			return c.blocks[len(c.blocks)-1], nil
		}
		n, err := hexutil.DecodeUint64(tag)
		if err != nil || n >= uint64(len(c.blocks)) {
			return nil, nil
		}
		return c.blocks[n], nil
	case "eth_getTransactionReceipt":
		if r, ok := c.receipts[common.HexToHash(str(0))]; ok {
			return r, nil
		}
		return nil, nil
	case "eth_sendRawTransaction":
		raw, err := hexutil.Decode(str(0))
		if err != nil {
			return nil, jsonrpc.NewErrorPayload(jsonrpc.CodeInvalidParams, err.Error())
		}
		hash := crypto.Keccak256Hash(raw)
		c.mempool = append(c.mempool, hash)
		return hash, nil
	case "eth_newBlockFilter":
		id := c.id()
		c.filters[id] = nil
		return id, nil
	case "eth_getFilterChanges":
		changes, ok := c.filters[str(0)]
		if !ok {
			return nil, jsonrpc.NewErrorPayload(jsonrpc.CodeServerError, "filter not found")
		}
		c.filters[str(0)] = nil
		if changes == nil {
			changes = []common.Hash{}
		}
		return changes, nil
	case "eth_uninstallFilter":
		_, ok := c.filters[str(0)]
		delete(c.filters, str(0))
		return ok, nil
	case jsonrpc.MethodSubscribe:
		if push == nil || str(0) != "newHeads" {
			return nil, jsonrpc.NewErrorPayload(jsonrpc.CodeMethodNotFound, "subscriptions not supported")
		}
		alias := c.id()
		c.subs[alias] = func(result json.RawMessage) { push(alias, result) }
		return alias, nil
	case jsonrpc.MethodUnsubscribe:
		_, ok := c.subs[str(0)]
		delete(c.subs, str(0))
		return ok, nil
	default:
		return nil, jsonrpc.NewErrorPayload(jsonrpc.CodeMethodNotFound, fmt.Sprintf("method %s not found", req.Method))
	}
}

func (c *fakeChain) respond(req wireReq, push func(string, json.RawMessage)) []byte {
	result, rpcErr := c.handle(req, push)
	var resp jsonrpc.Response
	if rpcErr != nil {
		resp = jsonrpc.ErrorResponse(req.ID, rpcErr)
	} else {
		raw, _ := json.Marshal(result)
		resp = jsonrpc.SuccessResponse(req.ID, raw)
	}
	out, _ := json.Marshal(resp)
	return out
}

// serveHTTP 以 HTTP JSON-RPC 暴露假节点
func (c *fakeChain) serveHTTP(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req wireReq
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.waitGate(req.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(c.respond(req, nil))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// serveWS 以 WebSocket JSON-RPC 暴露假节点
func (c *fakeChain) serveWS(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		write := func(msg []byte) {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.WriteMessage(websocket.TextMessage, msg)
		}
		push := func(alias string, result json.RawMessage) {
			write(notification(alias, result))
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wireReq
			if json.Unmarshal(data, &req) != nil {
				continue
			}
			write(c.respond(req, push))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// serveInProcess 用进程内连接驱动假节点
func (c *fakeChain) serveInProcess(t *testing.T) *pubsub.Frontend {
	front, iface := pubsub.NewInProcess(pubsub.Options{})
	push := func(alias string, result json.RawMessage) {
		iface.Deliver(notification(alias, result))
	}
	go func() {
		for {
			select {
			case raw := <-iface.Outgoing():
				var req wireReq
				if json.Unmarshal(raw, &req) != nil {
					continue
				}
				iface.Deliver(c.respond(req, push))
			case <-iface.ShutdownRequested():
				return
			}
		}
	}()
	t.Cleanup(func() { _ = front.Close() })
	return front
}

func notification(alias string, result json.RawMessage) []byte {
	id, err := jsonrpc.ParseSubscriptionIDString(alias)
	if err != nil {
		panic(err)
	}
	raw, _ := json.Marshal(jsonrpc.Notification{Subscription: id, Result: result})
	return raw
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func recvBlock(t *testing.T, ctx context.Context, blocks <-chan *types.Block) *types.Block {
	t.Helper()
	select {
	case b, ok := <-blocks:
		if !ok {
			t.Fatal("区块通道已关闭")
		}
		return b
	case <-ctx.Done():
		t.Fatal("等待区块超时")
		return nil
	}
}
