// Package latch provides synchronization helpers used to hand values and
// one-time events across goroutines.
package latch

import (
	"sync"
	"time"
)

// Latch is a one-shot barrier: once released it stays released.
type Latch struct {
	once sync.Once
	done chan struct{}
}

// New builds a closed latch
func New() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Release opens the latch. Subsequent calls are no-ops.
func (l *Latch) Release() {
	l.once.Do(func() { close(l.done) })
}

// Released tells if the latch has been opened
func (l *Latch) Released() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done exposes the latch as a channel, closed on release
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Await blocks until the latch is released or the timeout expires.
// It returns false on timeout.
func (l *Latch) Await(timeout time.Duration) bool {
	if l.Released() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.done:
		return true
	case <-timer.C:
		return false
	}
}
