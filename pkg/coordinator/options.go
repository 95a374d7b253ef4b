package coordinator

import (
	"time"

	"go.uber.org/zap"
)

// Defaults
const (
	DefaultPullPeriod    = 30 * time.Second
	DefaultPullDelay     = time.Second
	DefaultGCPeriod      = time.Hour
	DefaultShutdownGrace = 5 * time.Second
	DefaultWorkers       = 2
)

// Option configures a coordinator
type Option func(*Coordinator)

// Logger for the coordinator
func Logger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.l = l
		}
	}
}

// PullPeriod sets the period of the synchronization loop
func PullPeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pullPeriod = d
		}
	}
}

// PullDelay sets the delay between a change detected on another replica and the pull
func PullDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.pullDelay = d
		}
	}
}

// GCPeriod sets the period of repository housekeeping
func GCPeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.gcPeriod = d
		}
	}
}

// ShutdownGrace bounds the time Stop waits for background tasks
func ShutdownGrace(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.grace = d
		}
	}
}

// Workers bounds the number of concurrent background tasks
func Workers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCounter binds a cluster counter right away
func WithCounter(counter Counter) Option {
	return func(c *Coordinator) {
		c.initialCounter = counter
	}
}
