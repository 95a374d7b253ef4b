package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/profilestore/pkg/metrics"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type countingLoader struct {
	calls   *atomic.Int32
	release chan struct{}
	fail    bool
}

func newCountingLoader() *countingLoader {
	return &countingLoader{calls: atomic.NewInt32(0)}
}

func (l *countingLoader) Load(_ context.Context, version string) (*model.VersionData, error) {
	n := l.calls.Inc()
	if l.release != nil {
		<-l.release
	}
	if l.fail {
		return nil, errors.New("boom")
	}
	vd := model.NewVersionData(version)
	vd.Revision = string(rune('a' + n))
	return vd, nil
}

func TestGet(t *testing.T) {
	loader := newCountingLoader()
	c := New(loader, Size(2))

	vd, err := c.Get(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0", vd.Version)

	again, err := c.Get(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Same(t, vd, again)
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, 1, c.Len())

	// least recently used versions are evicted
	_, _ = c.Get(context.Background(), "2.0")
	_, _ = c.Get(context.Background(), "3.0")
	assert.Equal(t, 2, c.Len())
	_, _ = c.Get(context.Background(), "1.0")
	assert.Equal(t, int32(4), loader.calls.Load())
}

func TestInvalidate(t *testing.T) {
	loader := newCountingLoader()
	c := New(loader)

	first, err := c.Get(context.Background(), "1.0")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "2.0")
	require.NoError(t, err)

	c.Invalidate("1.0")
	second, err := c.Get(context.Background(), "1.0")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(3), loader.calls.Load())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}

func TestLoaderError(t *testing.T) {
	loader := newCountingLoader()
	loader.fail = true
	c := New(LoaderFunc(loader.Load))

	_, err := c.Get(context.Background(), "1.0")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentMisses(t *testing.T) {
	loader := newCountingLoader()
	loader.release = make(chan struct{})
	m := metrics.New()
	c := New(loader, Metrics(m))

	const readers = 8
	var wg sync.WaitGroup
	results := make([]*model.VersionData, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vd, err := c.Get(context.Background(), "1.0")
			assert.NoError(t, err)
			results[i] = vd
		}(i)
	}

	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)
	// leave time for all readers to join the pending load
	time.Sleep(20 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	for _, vd := range results {
		assert.Same(t, results[0], vd)
	}

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var misses float64
	for _, f := range families {
		if f.GetName() == "profilestore_cache_misses_total" {
			misses = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), misses)
}

func TestInvalidateDuringLoad(t *testing.T) {
	loader := newCountingLoader()
	loader.release = make(chan struct{})
	c := New(loader)

	done := make(chan *model.VersionData)
	go func() {
		vd, _ := c.Get(context.Background(), "1.0")
		done <- vd
	}()
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)

	// the snapshot being loaded may predate this change: it must not be kept
	c.Invalidate("1.0")
	close(loader.release)
	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, 0, c.Len())

	fresh, err := c.Get(context.Background(), "1.0")
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestInvalidateOtherVersionDuringLoad(t *testing.T) {
	loader := newCountingLoader()
	loader.release = make(chan struct{})
	c := New(loader)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), "1.0")
	}()
	require.Eventually(t, func() bool { return loader.calls.Load() == 1 }, time.Second, time.Millisecond)

	// a change to another version leaves the load of 1.0 cacheable
	c.Invalidate("2.0")
	close(loader.release)
	<-done
	assert.Equal(t, 1, c.Len())

	_, err := c.Get(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	_, err = c.Get(context.Background(), "1.0")
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}
