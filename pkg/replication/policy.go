// Package replication pulls from and pushes to the remote peer of a git repository.
//
// The remote is authoritative: a local branch which diverged from its remote
// counterpart is reset, and a local change which cannot be pushed as a
// fast-forward is rolled back.
package replication

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-git/v5/plumbing"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/gitrepo"
	"github.com/oneconcern/profilestore/pkg/metrics"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/oneconcern/profilestore/pkg/replication/status"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Policy replicates the branches of a repository
type Policy struct {
	repo         *gitrepo.Repo
	fetchTimeout time.Duration
	pushTimeout  time.Duration
	retries      int
	retryBackoff time.Duration
	seen         *lru.Cache[string, struct{}]
	m            *metrics.Metrics
	l            *zap.Logger
}

// PullOptions tune a pull
type PullOptions struct {
	// DeleteStaleBranches removes local branches which are gone from the remote
	DeleteStaleBranches bool
}

// PullResult tells which local branches changed
type PullResult struct {
	Created []string
	Updated []string
	Deleted []string
}

// Changed is true when the content of some branch changed
func (r PullResult) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Deleted) > 0
}

// PushOptions tune a push
type PushOptions struct {
	// Branch is the branch modified by the current operation
	Branch string

	// LastKnownGood is the tip of Branch before the current operation.
	// The zero hash means that Branch has been created by the operation.
	LastKnownGood plumbing.Hash
}

// PushResult tells which branches have been pushed
type PushResult struct {
	Pushed   []string
	Rejected []string
	Failed   []string
}

// New replication policy
func New(repo *gitrepo.Repo, opts ...Option) *Policy {
	p := &Policy{
		repo:         repo,
		fetchTimeout: DefaultTimeout,
		pushTimeout:  DefaultTimeout,
		retries:      DefaultRetries,
		retryBackoff: DefaultRetryBackoff,
		l:            zap.NewNop(),
	}
	for _, apply := range opts {
		apply(p)
	}
	p.seen, _ = lru.New[string, struct{}](seenErrorsSize)
	return p
}

// logOnce reports an error at warning level the first time its message is seen
func (p *Policy) logOnce(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if found, _ := p.seen.ContainsOrAdd(err.Error(), struct{}{}); found {
		p.l.Debug(msg, fields...)
		return
	}
	p.l.Warn(msg, fields...)
}

// Pull fetches the remote and aligns local branches on it.
//
// A fetch failure leaves local branches untouched and returns status.ErrFetch.
func (p *Policy) Pull(ctx context.Context, opts PullOptions) (PullResult, error) {
	var res PullResult
	if p.repo.RemoteURL() == "" {
		return res, nil
	}

	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	remote, err := p.repo.ListRemote(fctx)
	if err == nil {
		err = p.repo.Fetch(fctx)
	}
	if err != nil {
		p.m.FetchError()
		p.m.Pull(metrics.ResultFailed)
		p.logOnce("fetch failed", err, zap.String("url", p.repo.RemoteURL()))
		return res, status.ErrFetch.Wrap(err)
	}

	res, err = p.align(remote, opts)
	if err != nil {
		p.m.Pull(metrics.ResultFailed)
		return res, status.ErrReplication.WrapWithLog(p.l, err)
	}
	if res.Changed() {
		p.m.Pull(metrics.ResultChanged)
		p.l.Info("pulled changes",
			zap.Strings("created", res.Created),
			zap.Strings("updated", res.Updated),
			zap.Strings("deleted", res.Deleted),
		)
	} else {
		p.m.Pull(metrics.ResultUnchanged)
	}
	return res, nil
}

func sortedNames(m map[string]plumbing.Hash) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Policy) align(remote map[string]plumbing.Hash, opts PullOptions) (PullResult, error) {
	var res PullResult

	tracking, err := p.repo.RemoteBranches()
	if err != nil {
		return res, err
	}
	for name := range tracking {
		if _, ok := remote[name]; !ok {
			if err = p.repo.DeleteRemoteTrackingBranch(name); err != nil {
				return res, err
			}
		}
	}

	local, err := p.repo.LocalBranches()
	if err != nil {
		return res, err
	}

	for _, name := range sortedNames(remote) {
		target := remote[name]
		if !p.repo.HasCommit(target) {
			p.l.Warn("remote branch not fetched", zap.String("branch", name), zap.Stringer("commit", target))
			continue
		}
		current, ok := local[name]
		if !ok {
			if err = p.repo.CreateBranch(name, target); err != nil {
				return res, err
			}
			res.Created = append(res.Created, name)
			continue
		}
		if current == target {
			continue
		}
		updated, err := p.fastForward(name, current, target)
		if err != nil {
			return res, err
		}
		if updated {
			res.Updated = append(res.Updated, name)
		}
	}

	if !opts.DeleteStaleBranches || len(remote) == 0 {
		// an empty remote is more likely a new peer than a peer which deleted everything
		return res, nil
	}
	for _, name := range sortedNames(local) {
		if _, ok := remote[name]; ok || name == model.MasterBranch {
			continue
		}
		if err = p.deleteLocal(name); err != nil {
			return res, err
		}
		res.Deleted = append(res.Deleted, name)
	}
	return res, nil
}

// fastForward moves a local branch to the remote tip. It returns true when the tree changed.
func (p *Policy) fastForward(name string, current, target plumbing.Hash) (bool, error) {
	ahead, err := p.repo.IsAncestor(target, current)
	if err != nil {
		return false, err
	}
	if ahead {
		// local commits not pushed yet
		return false, nil
	}
	ff, err := p.repo.IsAncestor(current, target)
	if err != nil {
		return false, err
	}
	if !ff {
		p.l.Warn("local branch diverged from remote: resetting to remote",
			zap.String("branch", name),
			zap.String("local", gitrepo.Abbrev(current)),
			zap.String("remote", gitrepo.Abbrev(target)),
		)
	}

	before, err := p.repo.TreeHash(current)
	if err != nil {
		return false, err
	}
	if err = p.repo.SetBranch(name, target); err != nil {
		return false, err
	}
	after, err := p.repo.TreeHash(target)
	if err != nil {
		return false, err
	}
	return before != after, nil
}

func (p *Policy) deleteLocal(name string) error {
	current, err := p.repo.CurrentBranch()
	if err != nil {
		return err
	}
	if current == name {
		if err = p.repo.Checkout(model.MasterBranch); err != nil {
			return err
		}
	}
	p.l.Info("deleting stale branch", zap.String("branch", name))
	return p.repo.DeleteLocalBranch(name)
}

// Push publishes local branches which are ahead of the remote.
//
// When the branch of the current operation cannot be pushed, it is reset to its
// last known good commit and the error is returned. Failures on other branches
// are left for the next pull and only returned when no branch is given.
func (p *Policy) Push(ctx context.Context, opts PushOptions) (PushResult, error) {
	var res PushResult
	if p.repo.RemoteURL() == "" {
		return res, nil
	}

	local, err := p.repo.LocalBranches()
	if err != nil {
		return res, status.ErrReplication.Wrap(err)
	}
	tracking, err := p.repo.RemoteBranches()
	if err != nil {
		return res, status.ErrReplication.Wrap(err)
	}

	var (
		errs      error
		branchErr error
	)
	for _, name := range sortedNames(local) {
		if tip, ok := tracking[name]; ok && tip == local[name] && name != opts.Branch {
			continue
		}
		err := p.pushBranch(ctx, name)
		switch {
		case err == nil:
			p.m.Push(metrics.ResultOK)
			res.Pushed = append(res.Pushed, name)
			continue
		case errors.Is(err, gitrepo.ErrRejected):
			p.m.Push(metrics.ResultRejected)
			res.Rejected = append(res.Rejected, name)
			err = status.ErrPushRejected.Wrap(err)
		default:
			p.m.Push(metrics.ResultFailed)
			res.Failed = append(res.Failed, name)
			err = status.ErrPushFailed.Wrap(err)
		}
		if name == opts.Branch {
			branchErr = err
		}
		errs = multierr.Append(errs, err)
	}

	if branchErr != nil {
		if rerr := p.rollback(opts); rerr != nil {
			branchErr = multierr.Append(branchErr, rerr)
		}
		p.l.Warn("push failed: local change rolled back",
			zap.String("branch", opts.Branch),
			zap.String("reset_to", gitrepo.Abbrev(opts.LastKnownGood)),
			zap.Error(branchErr),
		)
		return res, branchErr
	}
	if errs != nil {
		p.logOnce("some branches could not be pushed", errs,
			zap.Strings("rejected", res.Rejected),
			zap.Strings("failed", res.Failed),
		)
		if opts.Branch == "" {
			return res, errs
		}
	}
	return res, nil
}

func (p *Policy) pushBranch(ctx context.Context, name string) error {
	op := func() error {
		pctx, cancel := context.WithTimeout(ctx, p.pushTimeout)
		defer cancel()
		err := p.repo.PushBranch(pctx, name)
		if err == nil || errors.Is(err, gitrepo.ErrTransport) {
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retryBackoff), uint64(p.retries)),
		ctx,
	)
	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		p.l.Debug("retrying push", zap.String("branch", name), zap.Duration("after", d), zap.Error(err))
	})
}

func (p *Policy) rollback(opts PushOptions) error {
	if !opts.LastKnownGood.IsZero() {
		return p.repo.SetBranch(opts.Branch, opts.LastKnownGood)
	}
	if hash, ok, _ := p.repo.RemoteBranchHash(opts.Branch); ok {
		// the branch exists remotely: align on it
		return p.repo.SetBranch(opts.Branch, hash)
	}
	return p.deleteLocal(opts.Branch)
}

// DeleteRemoteBranch removes a branch from the remote
func (p *Policy) DeleteRemoteBranch(ctx context.Context, name string) error {
	if p.repo.RemoteURL() == "" {
		return nil
	}
	op := func() error {
		pctx, cancel := context.WithTimeout(ctx, p.pushTimeout)
		defer cancel()
		err := p.repo.DeleteRemoteBranch(pctx, name)
		if err == nil || errors.Is(err, gitrepo.ErrTransport) {
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.retryBackoff), uint64(p.retries)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return status.ErrPushFailed.WrapWithLog(p.l, err, zap.String("branch", name))
	}
	return nil
}
