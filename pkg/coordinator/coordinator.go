// Package coordinator keeps a profile store in sync with its remote and with the other replicas.
//
// A coordinator pulls and pushes periodically, runs repository housekeeping,
// reacts to remote URL changes, and, when a cluster counter is bound, pulls
// shortly after another replica published a change.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/oneconcern/profilestore/pkg/latch"
	"github.com/segmentio/ksuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const incrementTimeout = 5 * time.Second

// Syncer is the replicated store driven by a coordinator
type Syncer interface {
	Pull(ctx context.Context, deleteStale bool) (bool, error)
	Push(ctx context.Context) error
	Housekeep(ctx context.Context) error
	SetRemoteURL(ctx context.Context, url string) (bool, error)
	TrackPushes(func())
}

// Coordinator schedules the background synchronization of a store
type Coordinator struct {
	syncer Syncer
	id     string

	pullPeriod     time.Duration
	pullDelay      time.Duration
	gcPeriod       time.Duration
	grace          time.Duration
	workers        int
	initialCounter Counter

	counter     *latch.Mailbox[Counter]
	subMu       sync.Mutex
	unsubscribe func()

	firstPull *latch.Latch
	remote    chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	loop     sync.WaitGroup
	pool     errgroup.Group
	started  *atomic.Bool
	stopOnce sync.Once

	l *zap.Logger
}

// New coordinator for a store. It registers a push hook on the store.
func New(syncer Syncer, opts ...Option) *Coordinator {
	c := &Coordinator{
		syncer:     syncer,
		id:         ksuid.New().String(),
		pullPeriod: DefaultPullPeriod,
		pullDelay:  DefaultPullDelay,
		gcPeriod:   DefaultGCPeriod,
		grace:      DefaultShutdownGrace,
		workers:    DefaultWorkers,
		counter:    latch.NewMailbox[Counter](),
		firstPull:  latch.New(),
		remote:     make(chan struct{}, 1),
		started:    atomic.NewBool(false),
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(c)
	}
	c.l = c.l.With(zap.String("replica", c.id))
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.pool.SetLimit(c.workers)

	syncer.TrackPushes(c.onPush)
	if c.initialCounter != nil {
		c.BindCounter(c.initialCounter)
	}
	return c
}

// ID identifies this replica to the cluster counter
func (c *Coordinator) ID() string {
	return c.id
}

// Start the synchronization loop. The first pull is attempted right away.
func (c *Coordinator) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.loop.Add(1)
	go c.run()
}

// AwaitFirstPull waits until the first pull has been attempted.
// It returns false on timeout.
func (c *Coordinator) AwaitFirstPull(timeout time.Duration) bool {
	return c.firstPull.Await(timeout)
}

// Stop the coordinator, waiting at most for the shutdown grace period
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.UnbindCounter()

		done := make(chan struct{})
		go func() {
			c.loop.Wait()
			_ = c.pool.Wait()
			close(done)
		}()
		timer := time.NewTimer(c.grace)
		defer timer.Stop()
		select {
		case <-done:
			c.l.Info("coordinator stopped")
		case <-timer.C:
			c.l.Warn("background tasks still running: giving up", zap.Duration("grace", c.grace))
		}
	})
}

func (c *Coordinator) run() {
	defer c.loop.Done()

	c.sync()
	c.firstPull.Release()

	pull := time.NewTicker(c.pullPeriod)
	defer pull.Stop()
	gc := time.NewTicker(c.gcPeriod)
	defer gc.Stop()

	var delayed <-chan time.Time
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-pull.C:
			c.sync()
		case <-gc.C:
			if err := c.syncer.Housekeep(c.ctx); err != nil {
				c.l.Warn("housekeeping failed", zap.Error(err))
			}
		case <-c.remote:
			// bursts of remote changes result in a single pull
			if delayed == nil {
				delayed = time.After(c.pullDelay)
			}
		case <-delayed:
			delayed = nil
			c.pullRemoteChange()
		}
	}
}

func (c *Coordinator) sync() {
	if _, err := c.syncer.Pull(c.ctx, true); err != nil {
		c.l.Debug("scheduled pull failed", zap.Error(err))
	}
	if err := c.syncer.Push(c.ctx); err != nil {
		c.l.Debug("scheduled push failed", zap.Error(err))
	}
}

func (c *Coordinator) pullRemoteChange() {
	changed, err := c.syncer.Pull(c.ctx, true)
	if err != nil {
		c.l.Debug("pull after remote change failed", zap.Error(err))
		return
	}
	if changed {
		// the store already dropped its snapshots and told its listeners
		c.l.Debug("applied change from another replica")
	}
}

// OnRemoteURLChanged points the store to another remote, then synchronizes with it.
// The work is done in the background.
func (c *Coordinator) OnRemoteURLChanged(url string) {
	if c.ctx.Err() != nil {
		c.l.Warn("coordinator stopped: ignoring remote change", zap.String("url", url))
		return
	}
	c.pool.Go(func() error {
		changed, err := c.syncer.SetRemoteURL(c.ctx, url)
		if err != nil {
			c.l.Warn("cannot change remote", zap.String("url", url), zap.Error(err))
			return nil
		}
		if !changed {
			return nil
		}
		if _, err = c.syncer.Pull(c.ctx, false); err != nil {
			c.l.Warn("pull from new remote failed", zap.String("url", url), zap.Error(err))
		}
		if err = c.syncer.Push(c.ctx); err != nil {
			c.l.Warn("push to new remote failed", zap.String("url", url), zap.Error(err))
		}
		return nil
	})
}

// BindCounter starts sharing change notifications through a cluster counter
func (c *Coordinator) BindCounter(counter Counter) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.unsubscribe = counter.Subscribe(c.onIncrement)
	c.counter.Bind(counter)
}

// UnbindCounter stops sharing change notifications
func (c *Coordinator) UnbindCounter() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.counter.Unbind()
}

// AwaitCounter waits for a cluster counter to be bound
func (c *Coordinator) AwaitCounter(timeout time.Duration) (Counter, bool) {
	return c.counter.AwaitWithTimeout(timeout)
}

func (c *Coordinator) onPush() {
	counter, ok := c.counter.Get()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, incrementTimeout)
	defer cancel()
	if _, err := counter.Increment(ctx, c.id); err != nil {
		c.l.Warn("cannot signal change to the cluster", zap.Error(err))
	}
}

func (c *Coordinator) onIncrement(_ int64, source string) {
	if source == c.id {
		return
	}
	select {
	case c.remote <- struct{}{}:
	default:
	}
}
