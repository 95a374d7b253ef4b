package cache

import (
	"github.com/oneconcern/profilestore/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultSize is the number of versions kept in cache
const DefaultSize = 32

// Option configures the cache
type Option func(*Cache)

// Size sets how many versions are kept in cache
func Size(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.size = n
		}
	}
}

// Logger for the cache
func Logger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.l = l
		}
	}
}

// Metrics collects hits and misses
func Metrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.m = m
	}
}
