package future

import (
	"sync"
)

type state[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool

	val T
	err error

	callbacks []func(T, error)
}

func newState[T any]() *state[T] {
	return &state[T]{done: make(chan struct{})}
}

func (s *state[T]) set(val T, err error) bool {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return false
	}
	s.val, s.err = val, err
	s.completed = true
	callbacks := s.callbacks
	s.callbacks = nil
	close(s.done)
	s.mu.Unlock()

	// callbacks run outside the lock, in registration order
	for _, cb := range callbacks {
		cb(val, err)
	}
	return true
}

func (s *state[T]) get() (T, error) {
	<-s.done
	return s.val, s.err
}

func (s *state[T]) subscribe(cb func(T, error)) {
	s.mu.Lock()
	if !s.completed {
		s.callbacks = append(s.callbacks, cb)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	cb(s.val, s.err)
}

func (s *state[T]) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
