package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWithoutReceivers(t *testing.T) {
	s := New[int](4)
	n, err := s.Send(1)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrNoReceivers)
}

func TestFanOut(t *testing.T) {
	s := New[int](4)
	a := s.Subscribe()
	b := s.Subscribe()
	require.Equal(t, 2, s.ReceiverCount())

	n, err := s.Send(7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx := context.Background()
	va, err := a.Recv(ctx)
	require.NoError(t, err)
	vb, err := b.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, va)
	assert.Equal(t, 7, vb)
}

func TestSlowReceiverDropsOldest(t *testing.T) {
	s := New[int](3)
	slow := s.Subscribe()
	fast := s.Subscribe()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := s.Send(i)
		require.NoError(t, err)
		v, err := fast.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	var got []int
	for {
		v, ok := slow.TryRecv()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got)
	assert.EqualValues(t, 2, slow.Lagged())
	assert.EqualValues(t, 0, fast.Lagged())
}

func TestCloseDrainsThenErrors(t *testing.T) {
	s := New[string](2)
	r := s.Subscribe()
	_, err := s.Send("a")
	require.NoError(t, err)
	s.Close()

	ctx := context.Background()
	v, err := r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = r.Recv(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Send("b")
	assert.ErrorIs(t, err, ErrClosed)

	late := s.Subscribe()
	_, err = late.Recv(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReceiverClose(t *testing.T) {
	s := New[int](2)
	r := s.Subscribe()
	r.Close()
	assert.Equal(t, 0, s.ReceiverCount())

	_, err := r.Recv(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecvBlocksUntilSend(t *testing.T) {
	s := New[int](2)
	r := s.Subscribe()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = s.Send(11)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, v)
}

func TestRecvContextCancel(t *testing.T) {
	s := New[int](2)
	r := s.Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResubscribeAndChan(t *testing.T) {
	s := New[int](4)
	r := s.Subscribe()
	r2 := r.Resubscribe()
	assert.Equal(t, 2, s.ReceiverCount())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := r2.Chan(ctx)

	_, err := s.Send(1)
	require.NoError(t, err)
	_, err = s.Send(2)
	require.NoError(t, err)
	s.Close()

	var got []int
	for v := range ch {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)
}
