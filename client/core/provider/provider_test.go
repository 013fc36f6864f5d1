package provider

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/provider/client/core/heartbeat"
	"github.com/weisyn/provider/client/core/rpc"
	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/broadcast"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
	"github.com/weisyn/provider/client/pkg/types"
)

func dialHTTP(t *testing.T, chain *fakeChain, opts Options) *Provider {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	p, err := Dial(testCtx(t), chain.serveHTTP(t).URL, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newInProcess(t *testing.T, chain *fakeChain, opts Options) *Provider {
	t.Helper()
	p := New(chain.serveInProcess(t), opts)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestDial(t *testing.T) {
	chain := newFakeChain()

	p, err := Dial(testCtx(t), chain.serveHTTP(t).URL, Options{})
	require.NoError(t, err)
	defer p.Close()
	assert.False(t, p.SupportsPubSub())
	assert.Equal(t, rpc.LocalPollInterval, p.Client().PollInterval(), "httptest 监听本机地址")

	_, err = Dial(testCtx(t), "ftp://node.example", Options{})
	assert.Error(t, err)
	_, err = Dial(testCtx(t), "://bad", Options{})
	assert.Error(t, err)
}

func TestDialWebSocket(t *testing.T) {
	chain := newFakeChain()
	srv := chain.serveWS(t)

	p, err := Dial(testCtx(t), "ws"+strings.TrimPrefix(srv.URL, "http"), Options{})
	require.NoError(t, err)
	defer p.Close()
	assert.True(t, p.SupportsPubSub())

	n, err := p.BlockNumber(testCtx(t))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	blocks, err := p.SubscribeBlocks(testCtx(t))
	require.NoError(t, err)
	chain.mine()
	b := recvBlock(t, testCtx(t), blocks)
	height, _ := b.Height()
	assert.EqualValues(t, 1, height)
}

func TestQueries(t *testing.T) {
	chain := newFakeChain()
	tx := common.HexToHash("0xaa")
	mined := chain.mine(tx)
	p := dialHTTP(t, chain, Options{})
	ctx := testCtx(t)

	n, err := p.BlockNumber(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1337), id)

	latest, err := p.GetBlockByNumber(ctx, types.LatestBlock, false)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, mined.Hash, latest.Hash)
	assert.Equal(t, []common.Hash{tx}, latest.TxHashes())

	genesis, err := p.GetBlockByNumber(ctx, types.BlockNumber(0), false)
	require.NoError(t, err)
	require.NotNil(t, genesis)
	assert.Equal(t, genesis.Hash, latest.ParentHash)

	missing, err := p.GetBlockByHash(ctx, common.HexToHash("0xdead"), false)
	require.NoError(t, err)
	assert.Nil(t, missing)

	receipt, err := p.GetTransactionReceipt(ctx, tx)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, mined.Hash, receipt.BlockHash)

	receipt, err = p.GetTransactionReceipt(ctx, common.HexToHash("0xbb"))
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestRawAndProtocolError(t *testing.T) {
	p := dialHTTP(t, newFakeChain(), Options{})
	ctx := testCtx(t)

	raw, err := p.Raw(ctx, "eth_chainId", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"0x539"`, string(raw))

	_, err = p.Raw(ctx, "eth_unknown", []int{1})
	var payload *jsonrpc.ErrorPayload
	require.True(t, errors.As(err, &payload))
	assert.EqualValues(t, jsonrpc.CodeMethodNotFound, payload.Code)
	assert.True(t, transport.IsProtocolError(err))
}

func TestSubscribeRequiresPubSub(t *testing.T) {
	p := dialHTTP(t, newFakeChain(), Options{})
	ctx := testCtx(t)

	_, err := p.Subscribe(ctx, []string{"newHeads"})
	assert.ErrorIs(t, err, ErrPubSubUnavailable)
	_, err = p.SubscribeBlocks(ctx)
	assert.ErrorIs(t, err, ErrPubSubUnavailable)
	assert.ErrorIs(t, p.Unsubscribe(ctx, jsonrpc.SubscriptionID{}), ErrPubSubUnavailable)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	chain := newFakeChain()
	p := newInProcess(t, chain, Options{})
	ctx := testCtx(t)

	sub, err := p.Subscribe(ctx, []string{"newHeads"})
	require.NoError(t, err)

	chain.mine()
	raw, err := sub.Receiver.Recv(ctx)
	require.NoError(t, err)
	var head types.Header
	require.NoError(t, json.Unmarshal(raw, &head))
	height, _ := (&types.Block{Header: head}).Height()
	assert.EqualValues(t, 1, height)

	require.NoError(t, p.Unsubscribe(ctx, sub.Alias))
	assert.Equal(t, 1, chain.count(jsonrpc.MethodUnsubscribe))
	_, err = sub.Receiver.Recv(ctx)
	assert.ErrorIs(t, err, broadcast.ErrClosed)

	_, err = p.Subscribe(ctx, []string{"logs"})
	assert.True(t, transport.IsProtocolError(err))
}

func TestWatchBlocksPollsFilter(t *testing.T) {
	chain := newFakeChain()
	p := dialHTTP(t, chain, Options{})
	ctx, cancel := context.WithCancel(testCtx(t))

	blocks, err := p.WatchBlocks(ctx)
	require.NoError(t, err)

	first := chain.mine(common.HexToHash("0x01"))
	second := chain.mine()
	assert.Equal(t, first.Hash, recvBlock(t, ctx, blocks).Hash)
	assert.Equal(t, second.Hash, recvBlock(t, ctx, blocks).Hash)

	cancel()
	for range blocks {
	}
	require.Eventually(t, func() bool {
		return chain.count("eth_uninstallFilter") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchPendingTransactionOverHTTP(t *testing.T) {
	chain := newFakeChain()
	p := dialHTTP(t, chain, Options{})
	ctx := testCtx(t)

	raw := []byte{0x01, 0x02, 0x03}
	builder, err := p.SendRawTransaction(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(raw), builder.TxHash())

	pending, err := builder.WithConfirmations(2).Register(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.count("eth_newBlockFilter"))

	chain.mine()
	chain.mine()

	latest, err := p.LatestBlock(ctx)
	require.NoError(t, err)
	_, err = latest.Next(ctx, nil)
	require.NoError(t, err)

	chain.mine()
	hash, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, builder.TxHash(), hash)
}

func TestHeartbeatStartupHonorsCallerContext(t *testing.T) {
	chain := newFakeChain()
	p := dialHTTP(t, chain, Options{})
	ctx := testCtx(t)

	release := chain.hold("eth_newBlockFilter")
	defer release()

	started := make(chan error, 1)
	go func() {
		_, err := p.Heartbeat(ctx)
		started <- err
	}()
	require.Eventually(t, func() bool { return chain.arrivals("eth_newBlockFilter") == 1 }, time.Second, 5*time.Millisecond)

	// 启动进行中，短超时的调用方按自己的 ctx 返回
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	begin := time.Now()
	_, err := p.WatchPendingTransaction(short, heartbeat.NewPendingTransactionConfig(common.HexToHash("0x01")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 500*time.Millisecond)

	release()
	require.NoError(t, <-started)

	// 并发调用共享同一次启动
	_, err = p.WatchPendingTransaction(ctx, heartbeat.NewPendingTransactionConfig(common.HexToHash("0x01")))
	require.NoError(t, err)
	assert.Equal(t, 1, chain.count("eth_newBlockFilter"))
}

func TestWatchPendingTransactionOverPubSub(t *testing.T) {
	chain := newFakeChain()
	p := newInProcess(t, chain, Options{})
	ctx := testCtx(t)

	tx := common.HexToHash("0xaa")
	pending, err := p.PendingTransaction(tx).WithConfirmations(1).Register(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.count(jsonrpc.MethodSubscribe))
	assert.Zero(t, chain.count("eth_newBlockFilter"))

	chain.mine(tx)
	chain.mine()

	hash, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, tx, hash)

	hb, err := p.Heartbeat(ctx)
	require.NoError(t, err)
	again, err := p.Heartbeat(ctx)
	require.NoError(t, err)
	assert.Same(t, hb, again, "引擎只启动一次")
}

func TestPendingTransactionTimeout(t *testing.T) {
	chain := newFakeChain()
	p := newInProcess(t, chain, Options{})
	ctx := testCtx(t)

	_, err := p.PendingTransaction(common.HexToHash("0xbb")).
		WithTimeout(30 * time.Millisecond).
		Watch(ctx)
	assert.ErrorIs(t, err, transport.ErrBackendGone)
}

func TestGetReceipt(t *testing.T) {
	chain := newFakeChain()
	p := newInProcess(t, chain, Options{DefaultConfirmations: 1})
	ctx := testCtx(t)

	_, err := p.Heartbeat(ctx)
	require.NoError(t, err)

	builder, err := p.SendRawTransaction(ctx, []byte{0xca, 0xfe})
	require.NoError(t, err)

	type result struct {
		receipt *types.Receipt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		r, err := builder.GetReceipt(ctx)
		done <- result{r, err}
	}()

	// 等待注册进入引擎后再出块
	time.Sleep(50 * time.Millisecond)
	chain.mine()
	chain.mine()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, builder.TxHash(), r.receipt.TransactionHash)
		assert.EqualValues(t, 1, r.receipt.BlockNumber)
	case <-ctx.Done():
		t.Fatal("等待回执超时")
	}
}

func TestPendingTransactionBuilderDefaults(t *testing.T) {
	p := New(newFakeChain().serveInProcess(t), Options{
		DefaultConfirmations: 3,
		DefaultTimeout:       time.Minute,
	})
	defer p.Close()

	cfg := p.PendingTransaction(common.HexToHash("0xaa")).Config()
	assert.EqualValues(t, 3, cfg.Confirmations)
	require.NotNil(t, cfg.Timeout)
	assert.Equal(t, time.Minute, *cfg.Timeout)

	cfg = p.PendingTransaction(common.HexToHash("0xaa")).
		WithConfirmations(0).
		WithTimeout(0).
		Config()
	assert.Zero(t, cfg.Confirmations)
	assert.Nil(t, cfg.Timeout)
}

func TestCloseResolvesPending(t *testing.T) {
	chain := newFakeChain()
	p := New(chain.serveInProcess(t), Options{})
	ctx := testCtx(t)

	pending, err := p.WatchPendingTransaction(ctx, heartbeat.NewPendingTransactionConfig(common.HexToHash("0xaa")))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, transport.ErrBackendGone)

	_, err = p.Heartbeat(ctx)
	assert.ErrorIs(t, err, transport.ErrBackendGone)
	_, err = p.BlockNumber(ctx)
	assert.ErrorIs(t, err, transport.ErrBackendGone)
}
