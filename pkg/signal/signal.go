// Package signal provides a small typed publish/subscribe primitive used by
// the engine for presentation hooks (connection state changes, node errors).
package signal

import "sync"

// Signal is a typed broadcast point. The zero value is ready to use.
// Subscribers are invoked synchronously, in subscription order, outside the
// signal's lock, so a subscriber may subscribe, unsubscribe or emit again.
type Signal[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns the function that removes it.
// Calling the returned function more than once is a no-op.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Signal[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers v to every current subscriber.
func (s *Signal[T]) Emit(v T) {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

// Clear removes every subscriber.
func (s *Signal[T]) Clear() {
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}

// Len returns the number of subscribers.
func (s *Signal[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
