// Package broadcast 提供有界、可丢弃的一对多分发通道
//
// 每个接收者拥有独立的环形缓冲区。缓冲区满时丢弃该接收者最旧的元素，
// 发送方从不阻塞，慢接收者不会拖慢其他接收者。
package broadcast

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed 发送方已关闭且缓冲区已读空，或接收者已关闭
	ErrClosed = errors.New("broadcast channel closed")
	// ErrNoReceivers 发送时没有任何接收者
	ErrNoReceivers = errors.New("broadcast channel has no receivers")
)

// Sender 发送端
type Sender[T any] struct {
	mu        sync.Mutex
	capacity  int
	receivers map[*Receiver[T]]struct{}
	closed    bool
}

// New 创建发送端，capacity 为每个接收者的缓冲区大小
func New[T any](capacity int) *Sender[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Sender[T]{
		capacity:  capacity,
		receivers: make(map[*Receiver[T]]struct{}),
	}
}

// Subscribe 新增接收者，只会收到此后发送的元素
func (s *Sender[T]) Subscribe() *Receiver[T] {
	r := &Receiver[T]{
		sender: s,
		buf:    make([]T, s.capacity),
		notify: make(chan struct{}, 1),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		r.closed = true
		return r
	}
	s.receivers[r] = struct{}{}
	return r
}

// Send 向所有接收者分发，返回接收者数量
func (s *Sender[T]) Send(v T) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if len(s.receivers) == 0 {
		return 0, ErrNoReceivers
	}
	for r := range s.receivers {
		r.push(v)
	}
	return len(s.receivers), nil
}

// ReceiverCount 当前接收者数量
func (s *Sender[T]) ReceiverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receivers)
}

// Close 关闭发送端；接收者读完缓冲区后得到 ErrClosed
func (s *Sender[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for r := range s.receivers {
		r.markClosed()
	}
	s.receivers = nil
}

func (s *Sender[T]) remove(r *Receiver[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.receivers, r)
}

// Receiver 接收端，不可并发调用 Recv
type Receiver[T any] struct {
	sender *Sender[T]

	mu     sync.Mutex
	buf    []T
	head   int
	size   int
	lagged uint64
	closed bool
	notify chan struct{}
}

func (r *Receiver[T]) push(v T) {
	r.mu.Lock()
	if r.size == len(r.buf) {
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		r.lagged++
	}
	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
	r.mu.Unlock()
	r.wake()
}

func (r *Receiver[T]) markClosed() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wake()
}

func (r *Receiver[T]) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// TryRecv 非阻塞读取
func (r *Receiver[T]) TryRecv() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.size == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return v, true
}

// Recv 阻塞读取下一个元素
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		if v, ok := r.TryRecv(); ok {
			return v, nil
		}
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if closed {
			// 关闭前最后一次推送可能与本次检查交错
			if v, ok := r.TryRecv(); ok {
				return v, nil
			}
			return zero, ErrClosed
		}

		select {
		case <-r.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Lagged 因缓冲区溢出被丢弃的元素总数
func (r *Receiver[T]) Lagged() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lagged
}

// Resubscribe 从同一发送端创建新的接收者
func (r *Receiver[T]) Resubscribe() *Receiver[T] {
	return r.sender.Subscribe()
}

// Close 注销接收者，缓冲区中的元素被丢弃
func (r *Receiver[T]) Close() {
	r.sender.remove(r)
	r.mu.Lock()
	r.closed = true
	r.size = 0
	r.mu.Unlock()
	r.wake()
}

// Chan 将接收者转为普通通道；ctx 取消或通道关闭后输出通道被关闭
func (r *Receiver[T]) Chan(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			v, err := r.Recv(ctx)
			if err != nil {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
