// Package metrics declares the prometheus collectors of the profile store.
package metrics

import (
	"time"

	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// KB stands for kilo bytes (1024 bytes)
	KB = units.KiB

	// MB stands for mega bytes (1024 kilo bytes)
	MB = units.MiB
)

// Result labels
const (
	ResultOK        = "ok"
	ResultChanged   = "changed"
	ResultUnchanged = "unchanged"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// Metrics groups all collectors.
//
// A nil *Metrics is valid: all methods are then no-ops.
type Metrics struct {
	Registry *prometheus.Registry

	pulls       *prometheus.CounterVec
	pushes      *prometheus.CounterVec
	fetchErrors prometheus.Counter
	commits     prometheus.Counter
	gcRuns      prometheus.Counter
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheLoad   prometheus.Histogram
	operations  *prometheus.HistogramVec
	listeners   prometheus.Gauge
}

// New registers all collectors
func New(opts ...Option) *Metrics {
	s := defaultSettings()
	for _, apply := range opts {
		apply(s)
	}
	m := &Metrics{}
	if s.registerer == nil {
		m.Registry = prometheus.NewRegistry()
		s.registerer = m.Registry
	}
	f := promauto.With(s.registerer)

	m.pulls = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: s.namespace,
		Subsystem: "replication",
		Name:      "pulls_total",
		Help:      "Pull cycles, by result",
	}, []string{"result"})
	m.pushes = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: s.namespace,
		Subsystem: "replication",
		Name:      "branch_pushes_total",
		Help:      "Branch pushes, by result",
	}, []string{"result"})
	m.fetchErrors = f.NewCounter(prometheus.CounterOpts{
		Namespace: s.namespace,
		Subsystem: "replication",
		Name:      "fetch_errors_total",
		Help:      "Failed fetches from the remote",
	})
	m.commits = f.NewCounter(prometheus.CounterOpts{
		Namespace: s.namespace,
		Subsystem: "store",
		Name:      "commits_total",
		Help:      "Commits of the working tree",
	})
	m.gcRuns = f.NewCounter(prometheus.CounterOpts{
		Namespace: s.namespace,
		Subsystem: "store",
		Name:      "gc_runs_total",
		Help:      "Garbage collections of the repository",
	})
	m.operations = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: s.namespace,
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of store operations holding the working tree lock",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	m.listeners = f.NewGauge(prometheus.GaugeOpts{
		Namespace: s.namespace,
		Subsystem: "store",
		Name:      "listeners",
		Help:      "Registered configuration listeners",
	})
	m.cacheHits = f.NewCounter(prometheus.CounterOpts{
		Namespace: s.namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Version lookups served from the cache",
	})
	m.cacheMisses = f.NewCounter(prometheus.CounterOpts{
		Namespace: s.namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Version lookups which required a load",
	})
	m.cacheLoad = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: s.namespace,
		Subsystem: "cache",
		Name:      "load_duration_seconds",
		Help:      "Duration of version loads",
		Buckets:   prometheus.DefBuckets,
	})
	return m
}

// Pull records the outcome of a pull cycle
func (m *Metrics) Pull(result string) {
	if m == nil {
		return
	}
	m.pulls.WithLabelValues(result).Inc()
}

// Push records the outcome of a branch push
func (m *Metrics) Push(result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
}

// FetchError records a failed fetch
func (m *Metrics) FetchError() {
	if m == nil {
		return
	}
	m.fetchErrors.Inc()
}

// Commit records a commit
func (m *Metrics) Commit() {
	if m == nil {
		return
	}
	m.commits.Inc()
}

// GC records a garbage collection
func (m *Metrics) GC() {
	if m == nil {
		return
	}
	m.gcRuns.Inc()
}

// CacheHit records a cache hit
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss records a cache miss and the duration of the load which followed
func (m *Metrics) CacheMiss(start time.Time) {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
	m.cacheLoad.Observe(time.Since(start).Seconds())
}

// Since feeds the duration of an operation from some start time
func (m *Metrics) Since(start time.Time, operation string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Listeners sets the number of registered listeners
func (m *Metrics) Listeners(n int) {
	if m == nil {
		return
	}
	m.listeners.Set(float64(n))
}
