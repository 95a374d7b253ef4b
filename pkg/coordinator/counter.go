package coordinator

import (
	"context"
	"sync"

	"github.com/segmentio/ksuid"
)

// Counter is a cluster-wide change counter.
//
// Every replica increments it after publishing a change. Subscribers learn about all
// increments, with the identity of the replica which made it.
type Counter interface {
	Increment(ctx context.Context, source string) (int64, error)
	Subscribe(fn func(value int64, source string)) (cancel func())
}

// LocalCounter is a Counter shared by replicas living in the same process
type LocalCounter struct {
	mu          sync.Mutex
	value       int64
	subscribers map[string]func(int64, string)
}

// NewLocalCounter builds a counter starting at 0
func NewLocalCounter() *LocalCounter {
	return &LocalCounter{subscribers: make(map[string]func(int64, string))}
}

// Increment the counter and notify all subscribers
func (c *LocalCounter) Increment(ctx context.Context, source string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.value++
	value := c.value
	subscribers := make([]func(int64, string), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(value, source)
	}
	return value, nil
}

// Value of the counter
func (c *LocalCounter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Subscribe to increments
func (c *LocalCounter) Subscribe(fn func(int64, string)) func() {
	token := ksuid.New().String()
	c.mu.Lock()
	c.subscribers[token] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subscribers, token)
		c.mu.Unlock()
	}
}
