package gitrepo

import (
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

// memWorktree is the working tree of in-memory repositories.
//
// Checkout and reset prune emptied directories up to the root of the working tree.
// On disk the root keeps .git and is never empty, while memfs has no entry for its
// root and fails to remove it.
type memWorktree struct {
	billy.Filesystem
}

func newMemWorktree() billy.Filesystem {
	return &memWorktree{Filesystem: memfs.New()}
}

func isRoot(name string) bool {
	switch filepath.Clean(filepath.FromSlash(name)) {
	case ".", string(filepath.Separator):
		return true
	}
	return false
}

func (m *memWorktree) Remove(name string) error {
	if isRoot(name) {
		return nil
	}
	return m.Filesystem.Remove(name)
}

func (m *memWorktree) Capabilities() billy.Capability {
	return billy.Capabilities(m.Filesystem)
}
