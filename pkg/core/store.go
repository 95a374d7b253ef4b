// Package core implements the versioned profile store.
//
// Versions are branches of a git repository and profiles are directories in these branches.
// All accesses to the single working tree of the repository are serialized; reads are
// normally served from a cache of parsed versions.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/oneconcern/profilestore/pkg/cache"
	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/gitrepo"
	"github.com/oneconcern/profilestore/pkg/metrics"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/oneconcern/profilestore/pkg/overlay"
	"github.com/oneconcern/profilestore/pkg/replication"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// State of the store lifecycle
type State int32

// Lifecycle states
const (
	Created State = iota
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Store is the versioned profile store
type Store struct {
	repo     *gitrepo.Repo
	policy   *replication.Policy
	cache    *cache.Cache
	resolver *overlay.Resolver
	layout   model.Layout

	// mu serializes all accesses to the working tree
	mu         sync.Mutex
	checkedOut string

	state   *atomic.Int32
	phase   *atomic.Int32
	commits *atomic.Uint64

	prefetch  bool
	gcEvery   uint64
	gcAge     time.Duration
	cacheSize int

	listeners *listeners

	m *metrics.Metrics
	l *zap.Logger
}

// New builds a store on top of a repository and its replication policy
func New(repo *gitrepo.Repo, policy *replication.Policy, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		policy:    policy,
		layout:    model.DefaultLayout(),
		state:     atomic.NewInt32(int32(Created)),
		phase:     atomic.NewInt32(int32(Idle)),
		commits:   atomic.NewUint64(0),
		gcEvery:   DefaultGCEvery,
		gcAge:     DefaultGCAge,
		cacheSize: cache.DefaultSize,
		l:         zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	if s.resolver == nil {
		s.resolver = overlay.New(overlay.Logger(s.l.Named("overlay")))
	}
	s.listeners = newListeners(s.l, s.m)
	s.cache = cache.New(cache.LoaderFunc(s.loadVersion), s.cacheOptions()...)
	return s
}

// State of the store
func (s *Store) State() State {
	return State(s.state.Load())
}

func (s *Store) assertStarted() error {
	switch s.State() {
	case Started:
		return nil
	case Stopped:
		return status.ErrStopped
	default:
		return status.ErrNotStarted
	}
}

// Layout used by this store
func (s *Store) Layout() model.Layout {
	return s.layout
}

// Start synchronizes with the remote and makes the store available.
//
// A failed initial pull is not fatal: the store starts from local state.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Created {
		return nil
	}

	if _, err := s.policy.Pull(ctx, replication.PullOptions{DeleteStaleBranches: true}); err != nil {
		s.l.Warn("initial pull failed: starting from local state", zap.Error(err))
	}
	if err := s.ensureMaster(ctx); err != nil {
		return err
	}
	s.cache.InvalidateAll()
	s.state.Store(int32(Started))
	s.l.Info("store started", zap.String("repo", s.repo.String()), zap.String("remote", s.repo.RemoteURL()))
	return nil
}

func (s *Store) ensureMaster(ctx context.Context) error {
	_, ok, err := s.repo.BranchHash(model.MasterBranch)
	if err != nil {
		return status.ErrStoreFault.Wrap(err)
	}
	if !ok {
		var hash plumbing.Hash
		remote, found, err := s.repo.RemoteBranchHash(model.MasterBranch)
		switch {
		case err != nil:
			return status.ErrStoreFault.Wrap(err)
		case found:
			hash = remote
			err = s.repo.CreateBranch(model.MasterBranch, hash)
		default:
			s.l.Info("initializing master branch")
			hash, err = s.repo.CreateOrphanBranch(model.MasterBranch, "Initialize master")
		}
		if err != nil {
			return status.ErrStoreFault.Wrap(err)
		}
		if !found {
			if _, err = s.policy.Push(ctx, replication.PushOptions{}); err != nil {
				s.l.Warn("could not publish master branch", zap.Error(err))
			}
		}
	}
	if err = s.repo.Checkout(model.MasterBranch); err != nil {
		return status.ErrStoreFault.Wrap(err)
	}
	s.checkedOut = model.MasterBranch
	return nil
}

// Stop the store, waiting for the operation in progress
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Store(int32(Stopped))
	s.l.Info("store stopped")
}
