package replication

import (
	"time"

	"github.com/oneconcern/profilestore/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds fetch and push operations
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is the number of retries of a failed push
	DefaultRetries = 3

	// DefaultRetryBackoff is the pause between push retries
	DefaultRetryBackoff = 250 * time.Millisecond

	seenErrorsSize = 128
)

// Option configures a replication policy
type Option func(*Policy)

// Logger for this policy
func Logger(l *zap.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.l = l
		}
	}
}

// FetchTimeout bounds listing and fetching the remote
func FetchTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// PushTimeout bounds every push attempt
func PushTimeout(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.pushTimeout = d
		}
	}
}

// Retries sets how many times a push is retried on transport failures
func Retries(n int) Option {
	return func(p *Policy) {
		if n >= 0 {
			p.retries = n
		}
	}
}

// RetryBackoff sets the pause between retries
func RetryBackoff(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.retryBackoff = d
		}
	}
}

// Metrics collects replication metrics
func Metrics(m *metrics.Metrics) Option {
	return func(p *Policy) {
		p.m = m
	}
}
