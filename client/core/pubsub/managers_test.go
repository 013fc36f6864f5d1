package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/provider/client/core/transport"
	"github.com/weisyn/provider/client/pkg/jsonrpc"
)

func mustSerialize(t *testing.T, id uint64, method string, params interface{}) jsonrpc.SerializedRequest {
	t.Helper()
	ser, err := jsonrpc.NewRequest(jsonrpc.NumberID(id), method, params).Serialize()
	require.NoError(t, err)
	return ser
}

func mustAlias(t *testing.T, s string) jsonrpc.SubscriptionID {
	t.Helper()
	alias, err := jsonrpc.ParseSubscriptionIDString(s)
	require.NoError(t, err)
	return alias
}

func TestRequestManagerDeliversOnce(t *testing.T) {
	m := NewRequestManager()
	f, ch := NewInFlight(mustSerialize(t, 1, "eth_blockNumber", nil))
	m.Insert(f)
	require.Equal(t, 1, m.Len())

	resp := jsonrpc.SuccessResponse(jsonrpc.NumberID(1), json.RawMessage(`"0x10"`))
	_, promoted, ok := m.HandleResponse(resp)
	assert.False(t, ok)
	assert.Nil(t, promoted)
	assert.Equal(t, 0, m.Len())

	r := <-ch
	require.NoError(t, r.Err)
	assert.Equal(t, `"0x10"`, string(r.Response.Payload.Result))

	// 重复响应被丢弃，调用方不会收到第二个结果
	_, _, ok = m.HandleResponse(resp)
	assert.False(t, ok)
	select {
	case <-ch:
		t.Fatal("响应被交付了两次")
	default:
	}
}

func TestRequestManagerUnknownID(t *testing.T) {
	m := NewRequestManager()
	_, f, ok := m.HandleResponse(jsonrpc.SuccessResponse(jsonrpc.NumberID(99), json.RawMessage(`1`)))
	assert.False(t, ok)
	assert.Nil(t, f)
}

func TestRequestManagerAbandonedCaller(t *testing.T) {
	m := NewRequestManager()
	f, _ := NewInFlight(mustSerialize(t, 1, "eth_chainId", nil))
	m.Insert(f)

	// 没有人读取结果通道，交付不应阻塞或 panic
	_, _, ok := m.HandleResponse(jsonrpc.SuccessResponse(jsonrpc.NumberID(1), json.RawMessage(`"0x1"`)))
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestRequestManagerSubscriptionPromotion(t *testing.T) {
	m := NewRequestManager()
	f, ch := NewInFlight(mustSerialize(t, 2, jsonrpc.MethodSubscribe, []interface{}{"newHeads"}))
	m.Insert(f)

	alias, promoted, ok := m.HandleResponse(jsonrpc.SuccessResponse(jsonrpc.NumberID(2), json.RawMessage(`"0xabc"`)))
	require.True(t, ok)
	require.Same(t, f, promoted)
	assert.Equal(t, mustAlias(t, "0xabc"), alias)

	// 升级前不会交付
	select {
	case <-ch:
		t.Fatal("升级前不应交付结果")
	default:
	}
}

func TestRequestManagerBadAlias(t *testing.T) {
	m := NewRequestManager()
	f, ch := NewInFlight(mustSerialize(t, 3, jsonrpc.MethodSubscribe, []interface{}{"newHeads"}))
	m.Insert(f)

	_, _, ok := m.HandleResponse(jsonrpc.SuccessResponse(jsonrpc.NumberID(3), json.RawMessage(`42`)))
	assert.False(t, ok)

	r := <-ch
	var de *transport.DeserializationError
	require.True(t, errors.As(r.Err, &de))
	assert.Equal(t, "42", de.Text)
}

func TestRequestManagerSubscriptionError(t *testing.T) {
	m := NewRequestManager()
	f, ch := NewInFlight(mustSerialize(t, 4, jsonrpc.MethodSubscribe, []interface{}{"bogus"}))
	m.Insert(f)

	_, _, ok := m.HandleResponse(jsonrpc.ErrorResponse(jsonrpc.NumberID(4), jsonrpc.NewErrorPayload(jsonrpc.CodeInvalidParams, "unknown subscription type")))
	assert.False(t, ok)
	r := <-ch
	require.NoError(t, r.Err)
	require.NotNil(t, r.Response.Payload.Error)
}

func TestRequestManagerRangeAndDropAll(t *testing.T) {
	m := NewRequestManager()
	var chans []<-chan Result
	for _, id := range []uint64{3, 1, 2} {
		f, ch := NewInFlight(mustSerialize(t, id, "eth_chainId", nil))
		m.Insert(f)
		chans = append(chans, ch)
	}

	var order []jsonrpc.ID
	m.Range(func(f *InFlight) { order = append(order, f.ID()) })
	assert.Equal(t, []jsonrpc.ID{jsonrpc.NumberID(1), jsonrpc.NumberID(2), jsonrpc.NumberID(3)}, order)

	m.DropAll(transport.ErrBackendGone)
	assert.Equal(t, 0, m.Len())
	for _, ch := range chans {
		assert.ErrorIs(t, (<-ch).Err, transport.ErrBackendGone)
	}
}

func TestActiveSubscriptionLocalID(t *testing.T) {
	req := mustSerialize(t, 5, jsonrpc.MethodSubscribe, []interface{}{"newHeads"})
	sub, rx := NewActiveSubscription(req, 0)
	defer sub.Close()

	assert.Equal(t, crypto.Keccak256Hash(req.Bytes()), sub.LocalID)
	assert.Equal(t, 1, sub.ListenerCount())

	other, _ := NewActiveSubscription(req, 0)
	assert.True(t, sub.Equal(other))

	assert.True(t, sub.Notify(json.RawMessage(`1`)))
	v, ok := rx.TryRecv()
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	rx.Close()
	assert.False(t, sub.Notify(json.RawMessage(`2`)))
}

func TestSubscriptionManagerNotify(t *testing.T) {
	m := NewSubscriptionManager(4)
	alias := mustAlias(t, "0x1")
	req := mustSerialize(t, 1, jsonrpc.MethodSubscribe, []interface{}{"newHeads"})

	_, rx := m.Upsert(req, alias)
	require.Equal(t, 1, m.Len())

	found, delivered := m.Notify(jsonrpc.Notification{Subscription: alias, Result: json.RawMessage(`{"n":1}`)})
	assert.True(t, found)
	assert.True(t, delivered)

	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(v))

	found, _ = m.Notify(jsonrpc.Notification{Subscription: mustAlias(t, "0x2"), Result: json.RawMessage(`1`)})
	assert.False(t, found)

	// 没有监听者时推送被丢弃
	rx.Close()
	found, delivered = m.Notify(jsonrpc.Notification{Subscription: alias, Result: json.RawMessage(`2`)})
	assert.True(t, found)
	assert.False(t, delivered)
}

func TestSubscriptionManagerSlowListener(t *testing.T) {
	m := NewSubscriptionManager(2)
	alias := mustAlias(t, "0x7")
	_, rx := m.Upsert(mustSerialize(t, 1, jsonrpc.MethodSubscribe, []interface{}{"logs"}), alias)

	for i := 0; i < 5; i++ {
		m.Notify(jsonrpc.Notification{Subscription: alias, Result: json.RawMessage([]byte{byte('0' + i)})})
	}

	first, ok := rx.TryRecv()
	require.True(t, ok)
	assert.Equal(t, "3", string(first))
	assert.EqualValues(t, 3, rx.Lagged())
}

func TestSubscriptionManagerUpsertSameRequest(t *testing.T) {
	m := NewSubscriptionManager(4)
	req := mustSerialize(t, 1, jsonrpc.MethodSubscribe, []interface{}{"newHeads"})
	first, rx1 := m.Upsert(req, mustAlias(t, "0xa"))
	second, rx2 := m.Upsert(req, mustAlias(t, "0xb"))

	assert.Same(t, first, second)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, first.ListenerCount())

	// 旧别名失效，推送按新别名分发
	found, _ := m.Notify(jsonrpc.Notification{Subscription: mustAlias(t, "0xa"), Result: json.RawMessage(`1`)})
	assert.False(t, found)
	found, delivered := m.Notify(jsonrpc.Notification{Subscription: mustAlias(t, "0xb"), Result: json.RawMessage(`1`)})
	assert.True(t, found)
	assert.True(t, delivered)

	_, ok := rx1.TryRecv()
	assert.True(t, ok)
	_, ok = rx2.TryRecv()
	assert.True(t, ok)
}

func TestSubscriptionManagerRebindAndRemove(t *testing.T) {
	m := NewSubscriptionManager(4)
	req := mustSerialize(t, 1, jsonrpc.MethodSubscribe, []interface{}{"newHeads"})
	sub, rx := m.Upsert(req, mustAlias(t, "0xa"))

	require.True(t, m.Rebind(sub.LocalID, mustAlias(t, "0xc")))
	alias, ok := m.Alias(sub.LocalID)
	require.True(t, ok)
	assert.Equal(t, mustAlias(t, "0xc"), alias)
	assert.Equal(t, 1, sub.ListenerCount())

	infos := m.Subscriptions()
	require.Len(t, infos, 1)
	assert.Equal(t, req.Bytes(), infos[0].Request.Bytes())
	assert.Equal(t, sub.LocalID, infos[0].LocalID)

	assert.True(t, m.Remove(mustAlias(t, "0xc")))
	assert.False(t, m.Remove(mustAlias(t, "0xc")))
	assert.Equal(t, 0, m.Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := rx.Recv(ctx)
	assert.Error(t, err)
}

func TestSubscriptionManagerOrdering(t *testing.T) {
	m := NewSubscriptionManager(4)
	for i := uint64(1); i <= 5; i++ {
		m.Upsert(mustSerialize(t, i, jsonrpc.MethodSubscribe, []interface{}{"newHeads"}), *new(jsonrpc.SubscriptionID).SetUint64(i))
	}
	infos := m.Subscriptions()
	require.Len(t, infos, 5)
	for i := 1; i < len(infos); i++ {
		assert.True(t, infos[i-1].LocalID.Big().Cmp(infos[i].LocalID.Big()) < 0)
	}
}

func TestReconnectPolicyRetryCount(t *testing.T) {
	policy := reconnectPolicy(context.Background(), Options{
		ReconnectAttempts: 3,
		ReconnectBackoff:  100 * time.Millisecond,
	})
	policy.Reset()

	var waits []time.Duration
	for d := policy.NextBackOff(); d != backoff.Stop; d = policy.NextBackOff() {
		waits = append(waits, d)
		require.Less(t, len(waits), 10, "退避没有停止")
	}
	// 三次尝试之间只有两次等待
	require.Len(t, waits, 2)
	assert.GreaterOrEqual(t, waits[0], 50*time.Millisecond)
	assert.LessOrEqual(t, waits[0], 150*time.Millisecond)
	for _, d := range waits {
		assert.LessOrEqual(t, d, time.Duration(float64(maxReconnectBackoff)*1.5))
	}
}

func TestReconnectPolicySingleAttempt(t *testing.T) {
	policy := reconnectPolicy(context.Background(), Options{ReconnectAttempts: 1, ReconnectBackoff: time.Second})
	policy.Reset()
	assert.Equal(t, backoff.Stop, policy.NextBackOff())
}

func TestReconnectPolicyStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := reconnectPolicy(ctx, Options{ReconnectAttempts: 5, ReconnectBackoff: time.Millisecond})
	policy.Reset()
	cancel()
	assert.Equal(t, backoff.Stop, policy.NextBackOff())
}
