package core

import (
	"time"

	"github.com/oneconcern/profilestore/pkg/cache"
	"github.com/oneconcern/profilestore/pkg/metrics"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/oneconcern/profilestore/pkg/overlay"
	"go.uber.org/zap"
)

const (
	// DefaultGCEvery is the number of commits between two garbage collections
	DefaultGCEvery = 100

	// DefaultGCAge protects recent unreachable objects from garbage collection
	DefaultGCAge = time.Hour
)

// Option configures a store
type Option func(*Store)

// Logger injects a logging facility into store operations
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}

// Layout defines how profiles map to directories
func Layout(layout model.Layout) Option {
	return func(s *Store) {
		if layout.ConfigRoot != "" {
			s.layout = layout
		}
	}
}

// WithPrefetch pulls from the remote before every change
func WithPrefetch(enabled bool) Option {
	return func(s *Store) {
		s.prefetch = enabled
	}
}

// GCEvery runs a garbage collection every n commits. 0 disables it.
func GCEvery(n uint64) Option {
	return func(s *Store) {
		s.gcEvery = n
	}
}

// GCAge protects unreachable objects younger than d from garbage collection
func GCAge(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.gcAge = d
		}
	}
}

// CacheSize sets the number of versions kept in cache
func CacheSize(n int) Option {
	return func(s *Store) {
		s.cacheSize = n
	}
}

// Metrics collects store metrics
func Metrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.m = m
	}
}

// Resolver overrides the overlay resolver
func Resolver(r *overlay.Resolver) Option {
	return func(s *Store) {
		if r != nil {
			s.resolver = r
		}
	}
}

func (s *Store) cacheOptions() []cache.Option {
	return []cache.Option{
		cache.Size(s.cacheSize),
		cache.Logger(s.l.Named("cache")),
		cache.Metrics(s.m),
	}
}
