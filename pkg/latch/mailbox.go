package latch

import (
	"sync"
	"time"
)

// Mailbox holds at most one value, for collaborators which are bound late
// and may come and go.
//
// Readers may wait for a value to be bound with AwaitWithTimeout.
type Mailbox[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value T
	bound bool
}

// NewMailbox builds an empty mailbox
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Bind sets the value and wakes up all waiters
func (m *Mailbox[T]) Bind(v T) {
	m.mu.Lock()
	m.value = v
	m.bound = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Unbind clears the value
func (m *Mailbox[T]) Unbind() {
	m.mu.Lock()
	var zero T
	m.value = zero
	m.bound = false
	m.mu.Unlock()
}

// Get returns the current value, if any
func (m *Mailbox[T]) Get() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.bound
}

// AwaitWithTimeout waits until a value is bound or the timeout expires.
func (m *Mailbox[T]) AwaitWithTimeout(timeout time.Duration) (T, bool) {
	deadline := time.Now().Add(timeout)

	// sync.Cond has no timed wait: a timer broadcasts once the deadline is reached
	timer := time.AfterFunc(timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer timer.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.bound {
		if !time.Now().Before(deadline) {
			var zero T
			return zero, false
		}
		m.cond.Wait()
	}
	return m.value, true
}
