// Package cache keeps parsed snapshots of versions in memory.
//
// Snapshots are loaded on demand and dropped when a version changes.
// Concurrent misses on the same version share a single load.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oneconcern/profilestore/pkg/metrics"
	"github.com/oneconcern/profilestore/pkg/model"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader builds the snapshot of a version
type Loader interface {
	Load(context.Context, string) (*model.VersionData, error)
}

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(context.Context, string) (*model.VersionData, error)

// Load a version
func (f LoaderFunc) Load(ctx context.Context, version string) (*model.VersionData, error) {
	return f(ctx, version)
}

// Cache of version snapshots. Snapshots are shared and must not be mutated.
type Cache struct {
	loader Loader
	size   int
	group  singleflight.Group

	// mu orders invalidations with the storage of loaded snapshots
	mu       sync.Mutex
	entries  *lru.Cache[string, *model.VersionData]
	epoch    *atomic.Uint64
	versions map[string]uint64

	m *metrics.Metrics
	l *zap.Logger
}

// New cache
func New(loader Loader, opts ...Option) *Cache {
	c := &Cache{
		loader:   loader,
		size:     DefaultSize,
		epoch:    atomic.NewUint64(0),
		versions: make(map[string]uint64),
		l:        zap.NewNop(),
	}
	for _, apply := range opts {
		apply(c)
	}
	c.entries, _ = lru.New[string, *model.VersionData](c.size)
	return c
}

// Get the snapshot of a version, loading it on a miss
func (c *Cache) Get(ctx context.Context, version string) (*model.VersionData, error) {
	if vd, ok := c.entries.Get(version); ok {
		c.m.CacheHit()
		return vd, nil
	}

	gen := c.generation(version)
	key := version + "@" + gen.String()
	start := time.Now()
	res, err, shared := c.group.Do(key, func() (interface{}, error) {
		c.m.CacheMiss(start)
		vd, err := c.loader.Load(ctx, version)
		if err != nil {
			return nil, err
		}
		c.store(gen, version, vd)
		return vd, nil
	})
	if err != nil {
		return nil, err
	}
	c.l.Debug("loaded version", zap.String("version", version), zap.Bool("shared", shared), zap.Duration("took", time.Since(start)))
	return res.(*model.VersionData), nil
}

// generation identifies the invalidations seen by a load:
// the global epoch bumped by InvalidateAll and the counter of the version itself
type generation struct {
	all     uint64
	version uint64
}

func (g generation) String() string {
	return strconv.FormatUint(g.all, 10) + "." + strconv.FormatUint(g.version, 10)
}

func (c *Cache) generation(version string) generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation{all: c.epoch.Load(), version: c.versions[version]}
}

// store a snapshot unless the version was invalidated since the load started
func (c *Cache) store(gen generation, version string, vd *model.VersionData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch.Load() != gen.all || c.versions[version] != gen.version {
		return
	}
	c.entries.Add(version, vd)
}

// Invalidate the snapshot of a version
func (c *Cache) Invalidate(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[version]++
	c.entries.Remove(version)
}

// InvalidateAll drops every snapshot
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch.Inc()
	c.versions = make(map[string]uint64)
	c.entries.Purge()
}

// Len is the number of cached versions
func (c *Cache) Len() int {
	return c.entries.Len()
}
