package model

import "sync"

// HandlerID 信号处理函数的句柄，用于断开连接
type HandlerID uint64

type handler[T any] struct {
	id HandlerID
	fn func(T)
}

// Signal 简单的同步观察者，零值可用
// Emit 时先复制处理函数列表再逐个调用，处理函数里可以安全地 Connect/Disconnect
type Signal[T any] struct {
	mu       sync.Mutex
	next     HandlerID
	handlers []handler[T]
}

// Connect 注册处理函数
func (s *Signal[T]) Connect(fn func(T)) HandlerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.handlers = append(s.handlers, handler[T]{id: s.next, fn: fn})
	return s.next
}

// Disconnect 移除处理函数，重复调用无副作用
func (s *Signal[T]) Disconnect(id HandlerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Emit 同步通知所有处理函数
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	hs := make([]handler[T], len(s.handlers))
	copy(hs, s.handlers)
	s.mu.Unlock()

	for _, h := range hs {
		h.fn(v)
	}
}

// Len 当前连接数
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}
