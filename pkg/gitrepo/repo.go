// Package gitrepo wraps a go-git repository and its single working tree.
//
// A Repo is not safe for concurrent use: callers serialize access.
package gitrepo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/oneconcern/profilestore/pkg/errors"
	"go.uber.org/zap"
)

// Repo is a git repository with a working tree
type Repo struct {
	dir         string
	repo        *git.Repository
	wt          *git.Worktree
	remote      string
	initialURL  string
	user        string
	password    string
	authorName  string
	authorEmail string
	l           *zap.Logger
}

// Open a repository in some directory, initializing it when needed.
//
// An empty directory opens a repository held in memory.
func Open(dir string, opts ...Option) (*Repo, error) {
	r := &Repo{
		dir:         dir,
		remote:      DefaultRemote,
		authorName:  "profilestore",
		authorEmail: "profilestore@localhost",
		l:           zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}

	var err error
	if dir == "" {
		r.repo, err = git.Init(memory.NewStorage(), newMemWorktree())
	} else {
		r.repo, err = git.PlainOpen(dir)
		if errors.Is(err, git.ErrRepositoryNotExists) {
			r.l.Info("initializing repository", zap.String("dir", dir))
			r.repo, err = git.PlainInit(dir, false)
		}
	}
	if err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	if r.wt, err = r.repo.Worktree(); err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	if r.initialURL != "" {
		if _, err = r.SetRemoteURL(r.initialURL); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Close releases files held by the object storage
func (r *Repo) Close() error {
	if c, ok := r.repo.Storer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Repo) String() string {
	if r.dir == "" {
		return "git@memory"
	}
	return "git@" + r.dir
}

// RemoteName is the name of the replication remote
func (r *Repo) RemoteName() string {
	return r.remote
}

// RemoteURL is the URL of the replication remote, empty when not configured
func (r *Repo) RemoteURL() string {
	rem, err := r.repo.Remote(r.remote)
	if err != nil {
		return ""
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// SetRemoteURL repoints the replication remote. An empty url removes it.
// It returns true when the configuration changed.
func (r *Repo) SetRemoteURL(url string) (bool, error) {
	if r.RemoteURL() == url {
		return false, nil
	}
	if err := r.repo.DeleteRemote(r.remote); err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
		return false, ErrRepository.Wrap(err)
	}
	if url == "" {
		return true, nil
	}
	_, err := r.repo.CreateRemote(&config.RemoteConfig{
		Name:  r.remote,
		URLs:  []string{url},
		Fetch: []config.RefSpec{r.fetchSpec()},
	})
	if err != nil {
		return false, ErrRepository.Wrap(err)
	}
	r.l.Info("remote configured", zap.String("remote", r.remote), zap.String("url", url))
	return true, nil
}

func (r *Repo) fetchSpec() config.RefSpec {
	return config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", r.remote))
}

func (r *Repo) auth() transport.AuthMethod {
	if r.user == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: r.user, Password: r.password}
}

func (r *Repo) signature() *object.Signature {
	return &object.Signature{Name: r.authorName, Email: r.authorEmail, When: time.Now()}
}

// LocalBranches maps local branch names to their tip
func (r *Repo) LocalBranches() (map[string]plumbing.Hash, error) {
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	res := make(map[string]plumbing.Hash)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		res[ref.Name().Short()] = ref.Hash()
		return nil
	})
	if err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	return res, nil
}

// RemoteBranches maps the remote-tracking branches of the replication remote to their tip
func (r *Repo) RemoteBranches() (map[string]plumbing.Hash, error) {
	iter, err := r.repo.References()
	if err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	prefix := "refs/remotes/" + r.remote + "/"
	res := make(map[string]plumbing.Hash)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if ref.Type() != plumbing.HashReference || !strings.HasPrefix(name, prefix) {
			return nil
		}
		if branch := strings.TrimPrefix(name, prefix); branch != "HEAD" {
			res[branch] = ref.Hash()
		}
		return nil
	})
	if err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	return res, nil
}

// CurrentBranch is the branch HEAD points to, even when it has no commit yet
func (r *Repo) CurrentBranch() (string, error) {
	ref, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", ErrRepository.Wrap(err)
	}
	if ref.Type() == plumbing.SymbolicReference {
		return ref.Target().Short(), nil
	}
	return "", nil
}

// Head is the commit currently checked out, or the zero hash
func (r *Repo) Head() plumbing.Hash {
	ref, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash
	}
	return ref.Hash()
}

// BranchHash is the tip of a local branch
func (r *Repo) BranchHash(name string) (plumbing.Hash, bool, error) {
	return r.refHash(plumbing.NewBranchReferenceName(name))
}

// RemoteBranchHash is the tip of a remote-tracking branch
func (r *Repo) RemoteBranchHash(name string) (plumbing.Hash, bool, error) {
	return r.refHash(plumbing.NewRemoteReferenceName(r.remote, name))
}

func (r *Repo) refHash(name plumbing.ReferenceName) (plumbing.Hash, bool, error) {
	ref, err := r.repo.Storer.Reference(name)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, ErrRepository.Wrap(err)
	}
	return ref.Hash(), true, nil
}

// Checkout a local branch, discarding local changes
func (r *Repo) Checkout(name string) error {
	_, ok, err := r.BranchHash(name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBranchNotFound.Wrapf("%s", name)
	}
	err = r.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Force:  true,
	})
	if err != nil {
		return ErrRepository.Wrapf("checkout %s: %w", name, err)
	}
	return nil
}

// CreateBranch creates or moves a local branch, without checking it out
func (r *Repo) CreateBranch(name string, from plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), from)
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return ErrRepository.Wrap(err)
	}
	return nil
}

// SetBranch moves a local branch to some commit, updating the working tree when it is checked out
func (r *Repo) SetBranch(name string, to plumbing.Hash) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if current == name {
		return r.ResetHard(to)
	}
	return r.CreateBranch(name, to)
}

// CreateOrphanBranch creates a branch pointing to a parentless commit with an empty tree
func (r *Repo) CreateOrphanBranch(name, message string) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{}).Encode(obj); err != nil {
		return plumbing.ZeroHash, ErrRepository.Wrap(err)
	}
	treeHash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, ErrRepository.Wrap(err)
	}

	sig := r.signature()
	commit := &object.Commit{
		Author:    *sig,
		Committer: *sig,
		Message:   message,
		TreeHash:  treeHash,
	}
	obj = r.repo.Storer.NewEncodedObject()
	if err = commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, ErrRepository.Wrap(err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, ErrRepository.Wrap(err)
	}
	return hash, r.CreateBranch(name, hash)
}

// DeleteLocalBranch removes a local branch, which must not be checked out
func (r *Repo) DeleteLocalBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if current == name {
		return ErrCheckedOut.Wrapf("%s", name)
	}
	if err := r.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name)); err != nil {
		return ErrRepository.Wrap(err)
	}
	return nil
}

// DeleteRemoteTrackingBranch forgets about a branch of the remote
func (r *Repo) DeleteRemoteTrackingBranch(name string) error {
	if err := r.repo.Storer.RemoveReference(plumbing.NewRemoteReferenceName(r.remote, name)); err != nil {
		return ErrRepository.Wrap(err)
	}
	return nil
}

// ResetHard moves the current branch to a commit and removes every local change, untracked files included
func (r *Repo) ResetHard(to plumbing.Hash) error {
	if err := r.wt.Reset(&git.ResetOptions{Commit: to, Mode: git.HardReset}); err != nil {
		return ErrRepository.Wrapf("reset to %s: %w", to, err)
	}
	if err := r.wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return ErrRepository.Wrap(err)
	}
	return nil
}

// CommitAll stages every change of the working tree and commits it.
//
// Nothing is committed when the working tree is clean.
func (r *Repo) CommitAll(message string) (plumbing.Hash, bool, error) {
	st, err := r.wt.Status()
	if err != nil {
		return plumbing.ZeroHash, false, ErrRepository.Wrap(err)
	}
	if st.IsClean() {
		return r.Head(), false, nil
	}
	for name, fs := range st {
		switch fs.Worktree {
		case git.Unmodified:
			continue
		case git.Deleted:
			_, err = r.wt.Remove(name)
		default:
			_, err = r.wt.Add(name)
		}
		if err != nil {
			return plumbing.ZeroHash, false, ErrRepository.Wrapf("staging %s: %w", name, err)
		}
	}
	sig := r.signature()
	// removing the last file of a branch leaves an empty index, which is still a change
	hash, err := r.wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		return plumbing.ZeroHash, false, ErrRepository.Wrap(err)
	}
	r.l.Debug("committed", zap.Stringer("commit", hash), zap.String("message", message))
	return hash, true, nil
}

func (r *Repo) commit(hash plumbing.Hash) (*object.Commit, error) {
	c, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, ErrRepository.Wrapf("commit %s: %w", hash, err)
	}
	return c, nil
}

// TreeHash is the hash of the root tree of a commit
func (r *Repo) TreeHash(commit plumbing.Hash) (plumbing.Hash, error) {
	if commit.IsZero() {
		return plumbing.ZeroHash, nil
	}
	c, err := r.commit(commit)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return c.TreeHash, nil
}

// IsAncestor tells if commit a is an ancestor of commit b
func (r *Repo) IsAncestor(a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	ca, err := r.commit(a)
	if err != nil {
		return false, err
	}
	cb, err := r.commit(b)
	if err != nil {
		return false, err
	}
	ok, err := ca.IsAncestor(cb)
	if err != nil {
		return false, ErrRepository.Wrap(err)
	}
	return ok, nil
}

// HasCommit tells if a commit is present in the local object store
func (r *Repo) HasCommit(hash plumbing.Hash) bool {
	_, err := r.repo.CommitObject(hash)
	return err == nil
}

// ListRemote returns the branches currently advertised by the remote
func (r *Repo) ListRemote(ctx context.Context) (map[string]plumbing.Hash, error) {
	rem, err := r.repo.Remote(r.remote)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return nil, ErrNoRemote
	}
	if err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	refs, err := rem.ListContext(ctx, &git.ListOptions{Auth: r.auth()})
	res := make(map[string]plumbing.Hash)
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return res, nil
	}
	if err != nil {
		return nil, ErrTransport.Wrap(err)
	}
	for _, ref := range refs {
		if ref.Name().IsBranch() && ref.Type() == plumbing.HashReference {
			res[ref.Name().Short()] = ref.Hash()
		}
	}
	return res, nil
}

// Fetch all branches of the remote into remote-tracking branches
func (r *Repo) Fetch(ctx context.Context) error {
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: r.remote,
		RefSpecs:   []config.RefSpec{r.fetchSpec()},
		Auth:       r.auth(),
		Tags:       git.NoTags,
		Force:      true,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate), errors.Is(err, transport.ErrEmptyRemoteRepository):
		return nil
	case errors.Is(err, git.ErrRemoteNotFound):
		return ErrNoRemote
	default:
		return ErrTransport.Wrap(err)
	}
}

// PushBranch pushes a local branch to the same branch on the remote.
//
// A push which is not a fast-forward fails with ErrRejected.
func (r *Repo) PushBranch(ctx context.Context, name string) error {
	hash, ok, err := r.BranchHash(name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBranchNotFound.Wrapf("%s", name)
	}
	ref := plumbing.NewBranchReferenceName(name)
	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: r.remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())},
		Auth:       r.auth(),
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
		return r.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewRemoteReferenceName(r.remote, name), hash))
	case errors.Is(err, git.ErrRemoteNotFound):
		return ErrNoRemote
	case isRejection(err):
		return ErrRejected.Wrapf("%s: %w", name, err)
	default:
		return ErrTransport.Wrapf("%s: %w", name, err)
	}
}

func isRejection(err error) bool {
	if errors.Is(err, git.ErrForceNeeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "rejected")
}

// DeleteRemoteBranch removes a branch from the remote and forgets its remote-tracking branch
func (r *Repo) DeleteRemoteBranch(ctx context.Context, name string) error {
	ref := plumbing.NewBranchReferenceName(name)
	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: r.remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(":" + ref.String())},
		Auth:       r.auth(),
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, git.ErrRemoteNotFound):
		return ErrNoRemote
	default:
		return ErrTransport.Wrapf("deleting %s: %w", name, err)
	}
	if _, ok, _ := r.RemoteBranchHash(name); ok {
		return r.DeleteRemoteTrackingBranch(name)
	}
	return nil
}

// GC prunes unreachable objects older than some duration and repacks the object store.
// In-memory repositories are left untouched.
func (r *Repo) GC(olderThan time.Duration) error {
	if r.dir == "" {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	if err := r.repo.Prune(git.PruneOptions{OnlyObjectsOlderThan: cutoff, Handler: r.repo.DeleteObject}); err != nil {
		return ErrRepository.Wrapf("prune: %w", err)
	}
	if err := r.repo.RepackObjects(&git.RepackConfig{OnlyDeletePacksOlderThan: cutoff}); err != nil {
		return ErrRepository.Wrapf("repack: %w", err)
	}
	return nil
}

// Abbrev returns the short form of a commit id
func Abbrev(hash plumbing.Hash) string {
	if hash.IsZero() {
		return ""
	}
	return hash.String()[:7]
}

func entryHash(tree *object.Tree, p string) plumbing.Hash {
	if tree == nil {
		return plumbing.ZeroHash
	}
	entry, err := tree.FindEntry(p)
	if err != nil {
		return plumbing.ZeroHash
	}
	return entry.Hash
}

// LastModified finds, for each path, the most recent commit reachable from tip by first parents
// which changed this path. Paths never found are omitted.
func (r *Repo) LastModified(tip plumbing.Hash, paths []string) (map[string]plumbing.Hash, error) {
	res := make(map[string]plumbing.Hash, len(paths))
	if tip.IsZero() || len(paths) == 0 {
		return res, nil
	}
	pending := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		pending[p] = struct{}{}
	}

	c, err := r.commit(tip)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	for len(pending) > 0 {
		var (
			parent     *object.Commit
			parentTree *object.Tree
		)
		if c.NumParents() > 0 {
			if parent, err = c.Parent(0); err != nil {
				return nil, ErrRepository.Wrap(err)
			}
			if parentTree, err = parent.Tree(); err != nil {
				return nil, ErrRepository.Wrap(err)
			}
		}
		for p := range pending {
			current := entryHash(tree, p)
			if current.IsZero() {
				// removed at this point of history
				delete(pending, p)
				continue
			}
			if current != entryHash(parentTree, p) {
				res[p] = c.Hash
				delete(pending, p)
			}
		}
		if parent == nil {
			break
		}
		c, tree = parent, parentTree
	}
	return res, nil
}

// ReadTree returns the files under some directory of a commit, keyed by their path relative to that directory
func (r *Repo) ReadTree(commit plumbing.Hash, dir string) (map[string][]byte, error) {
	res := make(map[string][]byte)
	if commit.IsZero() {
		return res, nil
	}
	c, err := r.commit(commit)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, ErrRepository.Wrap(err)
	}
	if dir != "" && dir != "." {
		tree, err = tree.Tree(dir)
		if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
			return res, nil
		}
		if err != nil {
			return nil, ErrRepository.Wrap(err)
		}
	}
	err = tree.Files().ForEach(func(f *object.File) error {
		rdr, err := f.Reader()
		if err != nil {
			return err
		}
		defer func() {
			_ = rdr.Close()
		}()
		content, err := io.ReadAll(rdr)
		if err != nil {
			return err
		}
		res[f.Name] = content
		return nil
	})
	if err != nil {
		return nil, ErrRepository.Wrapf("reading %s: %w", dir, err)
	}
	return res, nil
}

// Worktree is the file system of the working tree
func (r *Repo) Worktree() billy.Filesystem {
	return r.wt.Filesystem
}

// WriteFile writes a file of the working tree, creating parent directories
func (r *Repo) WriteFile(name string, data []byte) error {
	fs := r.wt.Filesystem
	if dir := path.Dir(name); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return ErrRepository.Wrap(err)
		}
	}
	if err := util.WriteFile(fs, name, data, 0644); err != nil {
		return ErrRepository.Wrapf("writing %s: %w", name, err)
	}
	return nil
}

// ReadFile reads a file of the working tree
func (r *Repo) ReadFile(name string) ([]byte, bool, error) {
	f, err := r.wt.Filesystem.Open(name)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ErrRepository.Wrap(err)
	}
	defer func() {
		_ = f.Close()
	}()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, false, ErrRepository.Wrapf("reading %s: %w", name, err)
	}
	return content, true, nil
}

// Exists tells if a file or directory exists in the working tree
func (r *Repo) Exists(name string) bool {
	_, err := r.wt.Filesystem.Stat(name)
	return err == nil
}

// RemoveAll removes a file or a directory of the working tree
func (r *Repo) RemoveAll(name string) error {
	if err := util.RemoveAll(r.wt.Filesystem, name); err != nil && !os.IsNotExist(err) {
		return ErrRepository.Wrapf("removing %s: %w", name, err)
	}
	return nil
}

// ListFiles lists the files under a directory of the working tree, relative to that directory
func (r *Repo) ListFiles(dir string) ([]string, error) {
	fs := r.wt.Filesystem
	if _, err := fs.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}
	names := []string{}
	err := util.Walk(fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), strings.TrimSuffix(dir, "/")+"/")
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, ErrRepository.Wrapf("listing %s: %w", dir, err)
	}
	sort.Strings(names)
	return names, nil
}
