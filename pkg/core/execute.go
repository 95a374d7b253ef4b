package core

import (
	"context"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/oneconcern/profilestore/pkg/core/status"
	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/oneconcern/profilestore/pkg/replication"
	replstatus "github.com/oneconcern/profilestore/pkg/replication/status"
	"go.uber.org/zap"
)

// Phase of the operation holding the working tree
type Phase int32

// Operation phases
const (
	Idle Phase = iota
	Pulling
	Executing
	Committing
	Pushing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pulling:
		return "pulling"
	case Executing:
		return "executing"
	case Committing:
		return "committing"
	case Pushing:
		return "pushing"
	default:
		return "unknown"
	}
}

// Phase of the current operation
func (s *Store) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Store) enter(p Phase) {
	s.phase.Store(int32(p))
}

// opSpec describes an operation on the working tree
type opSpec struct {
	name string

	// version is the branch to check out before running the operation
	version string

	// write operations may pull first, commit and push
	write bool
}

// opContext accumulates the side effects required by an operation
type opContext struct {
	ctx      context.Context
	spec     opSpec
	messages []string
	commit   bool
	push     bool

	// branch is pushed with lastKnownGood as its rollback point
	branch        string
	lastKnownGood plumbing.Hash

	// changed is set by operations which changed refs without committing
	changed       bool
	invalidated   []string
	invalidateAll bool
	remote        bool
}

func (op *opContext) requireCommit(msg string) {
	op.commit = true
	op.messages = append(op.messages, msg)
}

func (op *opContext) requirePush() {
	op.push = true
}

func (op *opContext) invalidate(version string) {
	op.changed = true
	if version == model.MasterBranch {
		// master is visible from every version
		op.invalidateAll = true
		return
	}
	op.invalidated = append(op.invalidated, version)
}

func (op *opContext) message() string {
	return strings.Join(op.messages, "\n")
}

func (op *opContext) changes() *Change {
	if !op.changed {
		return nil
	}
	c := &Change{All: op.invalidateAll, Remote: op.remote}
	if !c.All {
		c.Versions = op.invalidated
	}
	return c
}

// execute runs an operation against the working tree:
// pull (optional), checkout, execute, commit (optional), push (optional).
//
// Listeners are notified once the working tree is released.
func execute[T any](ctx context.Context, s *Store, spec opSpec, fn func(*opContext) (T, error)) (T, error) {
	var (
		zero T
		res  T
	)
	if err := s.assertStarted(); err != nil {
		return zero, err
	}

	op := &opContext{ctx: ctx, spec: spec, branch: spec.version}
	pushed, err := s.run(op, func(op *opContext) error {
		var ferr error
		res, ferr = fn(op)
		return ferr
	})
	if changes := op.changes(); changes != nil {
		s.listeners.notify(*changes)
	}
	if pushed {
		s.listeners.pushed()
	}
	if err != nil {
		return zero, err
	}
	return res, nil
}

func (s *Store) run(op *opContext, fn func(*opContext) error) (bool, error) {
	start := time.Now()
	s.mu.Lock()
	defer func() {
		s.enter(Idle)
		s.mu.Unlock()
		s.m.Since(start, op.spec.name)
	}()

	// the store may have been stopped while waiting
	if err := s.assertStarted(); err != nil {
		return false, err
	}

	if op.spec.write && s.prefetch {
		if _, err := s.pullLocked(op, true); err != nil {
			s.l.Debug("prefetch failed: proceeding with local state", zap.String("operation", op.spec.name), zap.Error(err))
		}
	}
	if op.spec.version != "" {
		lkg, err := s.checkoutLocked(op.spec.version)
		if err != nil {
			s.invalidateLocked(op)
			return false, err
		}
		op.lastKnownGood = lkg
	}

	s.enter(Executing)
	if err := fn(op); err != nil {
		s.rollbackLocked(op)
		s.invalidateLocked(op)
		return false, err
	}

	committed := false
	if op.commit {
		s.enter(Committing)
		_, ok, err := s.repo.CommitAll(op.message())
		if err != nil {
			s.rollbackLocked(op)
			s.invalidateLocked(op)
			return false, status.ErrStoreFault.WrapWithLog(s.l, err, zap.String("operation", op.spec.name))
		}
		if ok {
			committed = true
			op.invalidate(op.branch)
			s.afterCommitLocked()
		}
	}

	pushed := false
	if committed || op.push {
		s.enter(Pushing)
		res, err := s.policy.Push(op.ctx, replication.PushOptions{Branch: op.branch, LastKnownGood: op.lastKnownGood})
		if err != nil {
			return false, s.pushFailedLocked(op, err)
		}
		pushed = len(res.Pushed) > 0
	}
	s.invalidateLocked(op)
	return pushed, nil
}

// checkoutLocked checks out the branch of a version, creating it from the remote when needed.
// It returns the tip of the branch.
func (s *Store) checkoutLocked(version string) (plumbing.Hash, error) {
	hash, ok, err := s.repo.BranchHash(version)
	if err != nil {
		return plumbing.ZeroHash, status.ErrStoreFault.Wrap(err)
	}
	if !ok {
		remote, found, err := s.repo.RemoteBranchHash(version)
		if err != nil {
			return plumbing.ZeroHash, status.ErrStoreFault.Wrap(err)
		}
		if !found {
			return plumbing.ZeroHash, status.ErrVersionNotFound.Wrapf("%s", version)
		}
		if err = s.repo.CreateBranch(version, remote); err != nil {
			return plumbing.ZeroHash, status.ErrStoreFault.Wrap(err)
		}
		hash = remote
	}
	current, err := s.repo.CurrentBranch()
	if err != nil {
		return plumbing.ZeroHash, status.ErrStoreFault.Wrap(err)
	}
	if current != version || s.checkedOut != version {
		if err = s.repo.Checkout(version); err != nil {
			s.checkedOut = ""
			return plumbing.ZeroHash, status.ErrStoreFault.Wrap(err)
		}
		s.checkedOut = version
	}
	return hash, nil
}

// rollbackLocked discards partial changes of a failed operation
func (s *Store) rollbackLocked(op *opContext) {
	if !op.spec.write || op.spec.version == "" || op.lastKnownGood.IsZero() {
		return
	}
	if err := s.repo.ResetHard(op.lastKnownGood); err != nil {
		s.checkedOut = ""
		s.l.Error("cannot roll back working tree", zap.String("version", op.spec.version), zap.Error(err))
	}
}

func (s *Store) pushFailedLocked(op *opContext, err error) error {
	// the policy has rolled the branch back
	s.checkedOut = ""
	if op.branch != "" {
		op.invalidate(op.branch)
	}
	if !errors.Is(err, replstatus.ErrPushRejected) {
		s.invalidateLocked(op)
		return status.ErrPushFailed.Wrap(err)
	}

	// catch up with the change which won
	if _, perr := s.pullLocked(op, false); perr != nil {
		s.l.Debug("cannot pull after rejected push", zap.Error(perr))
	}
	s.invalidateLocked(op)
	return status.ErrPushRejected.Wrap(err)
}

func (s *Store) invalidateLocked(op *opContext) {
	if op.invalidateAll {
		s.cache.InvalidateAll()
		return
	}
	for _, version := range op.invalidated {
		s.cache.Invalidate(version)
	}
}

func (s *Store) afterCommitLocked() {
	s.m.Commit()
	n := s.commits.Inc()
	if s.gcEvery == 0 || n%s.gcEvery != 0 {
		return
	}
	if err := s.gcLocked(); err != nil {
		s.l.Warn("garbage collection failed", zap.Error(err))
	}
}

func (s *Store) gcLocked() error {
	start := time.Now()
	if err := s.repo.GC(s.gcAge); err != nil {
		return status.ErrStoreFault.Wrap(err)
	}
	s.m.GC()
	s.l.Info("garbage collected repository", zap.Duration("took", time.Since(start)))
	return nil
}

// pullLocked pulls from the remote and records what changed
func (s *Store) pullLocked(op *opContext, deleteStale bool) (bool, error) {
	s.enter(Pulling)
	res, err := s.policy.Pull(op.ctx, replication.PullOptions{DeleteStaleBranches: deleteStale})
	if err != nil {
		return false, err
	}
	if !res.Changed() {
		return false, nil
	}
	s.checkedOut = ""
	op.changed = true
	op.invalidateAll = true
	op.remote = true
	return true, nil
}
